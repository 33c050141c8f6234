package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/removin/removin/internal/metrics"
	"github.com/removin/removin/internal/procerr"
	"github.com/removin/removin/internal/replicate"
	"github.com/removin/removin/internal/store"
	"github.com/rs/zerolog/log"
)

// maxBodySize is the maximum allowed request body size (1 MB). Requests
// carry URLs and prompts, never image bytes.
const maxBodySize = 1 << 20

// maxPromptLen caps generation prompts.
const maxPromptLen = 1000

// handleToken dispatches GET (has-token check) and POST (save token).
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleTokenGet(w, r)
	case http.MethodPost:
		s.handleTokenSave(w, r)
	default:
		httpError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

func (s *Server) handleTokenGet(w http.ResponseWriter, r *http.Request) {
	uid := uidFrom(r)
	has, err := s.creds.HasToken(r.Context(), uid)
	if err != nil {
		log.Error().Err(err).Str("uid", uid).Msg("Credential lookup failed")
		// Treat a store failure as "no token" so the client prompts for
		// configuration instead of erroring.
		respondJSON(w, http.StatusOK, map[string]bool{"hasToken": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"hasToken": has})
}

func (s *Server) handleTokenSave(w http.ResponseWriter, r *http.Request) {
	uid := uidFrom(r)

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	if !store.ValidToken(req.Token) {
		httpError(w, http.StatusBadRequest,
			"invalid inference token: must start with r8_ and be at least 33 characters", "")
		return
	}

	if err := s.creds.SaveToken(r.Context(), uid, req.Token); err != nil {
		log.Error().Err(err).Str("uid", uid).Msg("Failed to save credential")
		httpError(w, http.StatusInternalServerError, "failed to save token", "")
		return
	}

	log.Info().Str("uid", truncateUID(uid)).Msg("Credential saved")
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRemoveBg(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	uid := uidFrom(r)

	var req struct {
		ImageURL     string `json:"imageUrl"`
		ModelVersion string `json:"modelVersion,omitempty"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	if req.ImageURL == "" {
		httpError(w, http.StatusBadRequest, "imageUrl is required", "")
		return
	}
	if !strings.HasPrefix(req.ImageURL, "http://") && !strings.HasPrefix(req.ImageURL, "https://") {
		httpError(w, http.StatusBadRequest, "invalid image URL", "")
		return
	}

	version := req.ModelVersion
	if version == "" {
		version = replicate.DefaultRemoveBgVersion
	}
	model, ok := replicate.RemoveBgModels[version]
	if !ok {
		httpError(w, http.StatusBadRequest, "unsupported model", "")
		return
	}

	token, err := s.creds.GetToken(r.Context(), uid)
	if err != nil {
		log.Error().Err(err).Str("uid", uid).Msg("Credential lookup failed")
		httpError(w, http.StatusInternalServerError, "failed to read token", "")
		return
	}
	if token == "" {
		httpError(w, http.StatusBadRequest,
			"no inference token configured; add one in settings", "NO_TOKEN")
		return
	}

	log.Info().Str("uid", truncateUID(uid)).Str("model", model.Name).Msg("Processing remove-bg")

	input := map[string]interface{}{model.InputKey: req.ImageURL}
	s.runPrediction(w, r, "remove-bg", token, version, input)
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	uid := uidFrom(r)

	var req struct {
		Prompt            string  `json:"prompt"`
		NegativePrompt    string  `json:"negative_prompt,omitempty"`
		Width             int     `json:"width,omitempty"`
		Height            int     `json:"height,omitempty"`
		NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
		GuidanceScale     float64 `json:"guidance_scale,omitempty"`
		Scheduler         string  `json:"scheduler,omitempty"`
		Seed              *int64  `json:"seed,omitempty"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	if req.Prompt == "" {
		httpError(w, http.StatusBadRequest, "prompt is required", "")
		return
	}
	if len(req.Prompt) > maxPromptLen {
		httpError(w, http.StatusBadRequest, "prompt too long (max 1000 characters)", "")
		return
	}

	token, err := s.creds.GetToken(r.Context(), uid)
	if err != nil {
		log.Error().Err(err).Str("uid", uid).Msg("Credential lookup failed")
		httpError(w, http.StatusInternalServerError, "failed to read token", "")
		return
	}
	if token == "" {
		httpError(w, http.StatusBadRequest,
			"no inference token configured; add one in settings", "NO_TOKEN")
		return
	}

	negative := req.NegativePrompt
	if negative == "" {
		negative = "ugly, blurry, poor quality"
	}

	input := map[string]interface{}{
		"prompt":              req.Prompt,
		"negative_prompt":     negative,
		"num_inference_steps": clampInt(req.NumInferenceSteps, 30, 10, 50),
		"guidance_scale":      clampFloat(req.GuidanceScale, 7.5, 1, 20),
		"width":               defaultInt(req.Width, 1024),
		"height":              defaultInt(req.Height, 1024),
	}
	if req.Scheduler != "" {
		input["scheduler"] = req.Scheduler
	}
	if req.Seed != nil {
		input["seed"] = *req.Seed
	}

	log.Info().
		Str("uid", truncateUID(uid)).
		Int("width", input["width"].(int)).
		Int("height", input["height"].(int)).
		Msg("Generating image")

	s.runPrediction(w, r, "generate-image", token, replicate.GenerateImageVersion, input)
}

// runPrediction forwards one prediction to the provider and relays the
// outcome, mapping provider failures to the gateway's error contract.
func (s *Server) runPrediction(w http.ResponseWriter, r *http.Request, op, token, version string, input map[string]interface{}) {
	start := time.Now()
	output, err := s.provider.Predict(r.Context(), token, version, input)
	elapsed := time.Since(start)

	result := "success"
	defer func() {
		metrics.New("Removin").
			Dimension("Operation", op).
			Dimension("Result", result).
			Metric("PredictionMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
			Count("PredictionCount").
			Flush()
	}()

	if err != nil {
		kind := procerr.KindOf(err)
		result = kind.String()
		log.Error().Err(err).Str("operation", op).Msg("Prediction failed")

		switch kind {
		case procerr.KindCredentialInvalid:
			httpError(w, http.StatusBadRequest,
				"inference token invalid or expired; update it in settings", "INVALID_TOKEN")
		case procerr.KindRateLimited:
			respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":      "inference provider rate limit reached",
				"retryAfter": 15,
			})
		default:
			httpError(w, http.StatusBadGateway, "failed to process image", "")
		}
		return
	}

	url, err := replicate.OutputURL(output)
	if err != nil {
		result = "no_output"
		httpError(w, http.StatusInternalServerError, "no output image produced", "")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"outputUrl": url,
	})
}

// truncateUID shortens a user id for logging; full ids never hit the logs.
func truncateUID(uid string) string {
	if len(uid) > 8 {
		return uid[:8]
	}
	return uid
}

func clampInt(v, def, min, max int) int {
	if v == 0 {
		v = def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, def, min, max float64) float64 {
	if v == 0 {
		v = def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
