// Package apiclient is the Go client for the Removin gateway API. It is used
// by the batch and folder-watch pipelines to check credentials and submit
// processing requests, with retry handling for rate limits and transient
// network failures.
package apiclient

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

const (
	// maxRetries is the number of additional attempts after the first.
	maxRetries = 2

	// defaultRetryAfter applies when a 429 response carries no hint.
	defaultRetryAfter = 15 * time.Second

	// networkBackoff is the pause before retrying a transport failure.
	networkBackoff = 5 * time.Second
)

// TokenSource supplies the bearer credential for each request. Reading it
// per request keeps long-running pipelines working across token refreshes.
type TokenSource func() string

// Client talks to the Removin gateway.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client

	// sleep is replaced in tests to avoid real waits.
	sleep func(time.Duration)
}

// New creates a gateway client. baseURL has no trailing slash.
func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 150 * time.Second},
		sleep:      time.Sleep,
	}
}

// apiError is the gateway's JSON error body.
type apiError struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter"`
}

// HasToken reports whether the user has an inference token configured.
func (c *Client) HasToken(ctx context.Context) (bool, error) {
	var resp struct {
		HasToken bool `json:"hasToken"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/user/token", nil, &resp); err != nil {
		return false, err
	}
	return resp.HasToken, nil
}

// SaveToken stores an inference token for the user.
func (c *Client) SaveToken(ctx context.Context, token string) error {
	body := map[string]string{"token": token}
	return c.request(ctx, http.MethodPost, "/api/user/token", body, nil)
}

// RemoveBackground submits a background-removal request for the image at
// imageURL and returns the processed image URL. modelVersion may be empty
// to use the gateway default.
func (c *Client) RemoveBackground(ctx context.Context, imageURL, modelVersion string) (string, error) {
	body := map[string]string{"imageUrl": imageURL}
	if modelVersion != "" {
		body["modelVersion"] = modelVersion
	}
	var resp struct {
		OutputURL string `json:"outputUrl"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/remove-bg", body, &resp); err != nil {
		return "", err
	}
	return resp.OutputURL, nil
}

// GenerateOptions are optional parameters for GenerateImage. Zero values
// fall back to the gateway defaults.
type GenerateOptions struct {
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	Guidance       float64
	Seed           *int64
}

// GenerateImage submits a text-to-image request and returns the generated
// image URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	body := map[string]interface{}{"prompt": prompt}
	if opts.NegativePrompt != "" {
		body["negative_prompt"] = opts.NegativePrompt
	}
	if opts.Width != 0 {
		body["width"] = opts.Width
	}
	if opts.Height != 0 {
		body["height"] = opts.Height
	}
	if opts.Steps != 0 {
		body["num_inference_steps"] = opts.Steps
	}
	if opts.Guidance != 0 {
		body["guidance_scale"] = opts.Guidance
	}
	if opts.Seed != nil {
		body["seed"] = *opts.Seed
	}

	var resp struct {
		OutputURL string `json:"outputUrl"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/generate-image", body, &resp); err != nil {
		return "", err
	}
	return resp.OutputURL, nil
}

// request performs one API call with retries. Rate-limited responses wait
// for the server's retryAfter hint; transport failures back off briefly.
// Other errors are returned immediately.
func (c *Client) request(ctx context.Context, method, path string, body, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.do(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var wait time.Duration
		switch procerr.KindOf(err) {
		case procerr.KindRateLimited:
			wait = defaultRetryAfter
			if hint := procerr.RetryAfterOf(err); hint > 0 {
				wait = hint
			}
		case procerr.KindNetworkError:
			wait = networkBackoff
		default:
			return err
		}

		if attempt == maxRetries {
			break
		}
		log.Warn().
			Err(err).
			Str("path", path).
			Dur("wait", wait).
			Int("attempt", attempt+1).
			Msg("Retrying API request")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.waitCh(wait):
		}
	}
	return lastErr
}

// waitCh adapts the injectable sleep to a channel so retries stay
// cancellable through the context.
func (c *Client) waitCh(d time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		c.sleep(d)
		close(done)
	}()
	return done
}

// do performs a single request attempt.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return procerr.Wrap(procerr.KindNetworkError, err, "request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return procerr.Wrap(procerr.KindNetworkError, err, "failed to read response")
	}

	if resp.StatusCode >= 400 {
		return classifyError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// classifyError maps a gateway error response to a typed error, preferring
// the machine-readable code over the HTTP status.
func classifyError(status int, data []byte) error {
	var body apiError
	_ = json.Unmarshal(data, &body)

	msg := body.Error
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}

	// msg is server-supplied text, never a format string.
	switch body.Code {
	case "NO_TOKEN":
		return procerr.New(procerr.KindCredentialMissing, "%s", msg)
	case "INVALID_TOKEN":
		return procerr.New(procerr.KindCredentialInvalid, "%s", msg)
	}

	err := &procerr.Error{Kind: procerr.FromStatus(status), Message: msg}
	if status == http.StatusTooManyRequests && body.RetryAfter > 0 {
		err.RetryAfter = time.Duration(body.RetryAfter) * time.Second
	}
	return err
}
