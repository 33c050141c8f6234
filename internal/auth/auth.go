// Package auth verifies caller identity for the inference gateway. A bearer
// ID token is validated against the identity provider's lookup endpoint and
// resolved to a stable user identifier.
package auth

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

// Verifier validates a bearer credential and yields a stable user id.
type Verifier interface {
	Verify(ctx context.Context, bearer string) (uid string, err error)
}

// HTTPVerifier validates ID tokens against an identity provider's
// accounts lookup endpoint (Google Identity Toolkit wire format).
type HTTPVerifier struct {
	lookupURL string
	apiKey    string
	client    *http.Client
}

var _ Verifier = (*HTTPVerifier)(nil)

// NewHTTPVerifier creates a verifier for the given lookup endpoint.
func NewHTTPVerifier(lookupURL, apiKey string) *HTTPVerifier {
	return &HTTPVerifier{
		lookupURL: lookupURL,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// lookupResponse is the subset of the identity provider response we read.
type lookupResponse struct {
	Users []struct {
		LocalID string `json:"localId"`
	} `json:"users"`
}

// Verify posts the ID token to the lookup endpoint and extracts the user id.
func (v *HTTPVerifier) Verify(ctx context.Context, bearer string) (string, error) {
	if bearer == "" {
		return "", procerr.New(procerr.KindCredentialMissing, "authentication token required")
	}

	body, err := json.Marshal(map[string]string{"idToken": bearer})
	if err != nil {
		return "", fmt.Errorf("marshal lookup request: %w", err)
	}

	url := v.lookupURL
	if v.apiKey != "" {
		url += "?key=" + v.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", procerr.Wrap(procerr.KindNetworkError, err, "identity provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(raw)).
			Msg("Identity lookup rejected token")
		return "", procerr.New(procerr.KindCredentialInvalid, "token invalid or expired")
	}

	var lookup lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return "", fmt.Errorf("decode lookup response: %w", err)
	}
	if len(lookup.Users) == 0 || lookup.Users[0].LocalID == "" {
		return "", procerr.New(procerr.KindCredentialInvalid, "token resolved to no user")
	}

	return lookup.Users[0].LocalID, nil
}

// StaticVerifier resolves every non-empty bearer to a fixed user id.
// Used for local development and tests; never in production.
type StaticVerifier struct {
	UID string
}

var _ Verifier = (*StaticVerifier)(nil)

func (v *StaticVerifier) Verify(_ context.Context, bearer string) (string, error) {
	if bearer == "" {
		return "", procerr.New(procerr.KindCredentialMissing, "authentication token required")
	}
	return v.UID, nil
}
