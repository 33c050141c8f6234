// Package replicate is a thin client for the Replicate predictions API.
// The gateway attaches the calling user's stored token per request; the
// client itself holds no credentials.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/removin/removin/internal/procerr"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the production predictions endpoint.
const DefaultBaseURL = "https://api.replicate.com/v1/predictions"

// Client calls the Replicate predictions API with a wait-for-completion
// directive, so a single round trip yields the final output.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client against the production API.
func NewClient() *Client {
	return &Client{
		baseURL: DefaultBaseURL,
		// Prefer: wait keeps the connection open until the prediction
		// settles; background removal typically takes a few seconds but
		// generation can run much longer.
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// NewClientWithBaseURL creates a Client against a custom endpoint. Used in tests.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

// predictionRequest is the wire shape of a prediction call.
type predictionRequest struct {
	Version string                 `json:"version"`
	Input   map[string]interface{} `json:"input"`
}

// predictionResponse is the subset of the prediction result we read.
type predictionResponse struct {
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error,omitempty"`
}

// Predict runs one prediction with the caller's token and returns the raw
// output value. Upstream auth failures map to credential_invalid, 429 to
// rate_limited, and other failures to inference_failed.
func (c *Client) Predict(ctx context.Context, token, version string, input map[string]interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(predictionRequest{Version: version, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build prediction request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, procerr.Wrap(procerr.KindNetworkError, err, "inference provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("version", version).
			Msg("Prediction rejected")

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, procerr.New(procerr.KindCredentialInvalid, "inference token invalid or expired")
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, procerr.New(procerr.KindRateLimited, "inference provider rate limit reached")
		default:
			return nil, procerr.New(procerr.KindInferenceFailed, "prediction failed with status %d: %s", resp.StatusCode, string(raw))
		}
	}

	var pred predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}
	if pred.Error != "" {
		return nil, procerr.New(procerr.KindInferenceFailed, "prediction failed: %s", pred.Error)
	}
	if len(pred.Output) == 0 || string(pred.Output) == "null" {
		return nil, procerr.New(procerr.KindInferenceFailed, "prediction produced no output")
	}

	log.Debug().
		Str("version", version).
		Dur("duration", time.Since(start)).
		Msg("Prediction complete")

	return pred.Output, nil
}

// OutputURL extracts a single result URL from a prediction output, which
// may be either a bare string or an array of strings.
func OutputURL(output json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(output, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(output, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}

	return "", procerr.New(procerr.KindInferenceFailed, "prediction produced no output URL")
}
