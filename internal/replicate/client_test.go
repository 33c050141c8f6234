package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/removin/removin/internal/procerr"
)

func TestPredict_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer r8_test" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		if got := r.Header.Get("Prefer"); got != "wait" {
			t.Errorf("expected Prefer: wait, got %q", got)
		}

		var req predictionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Version != DefaultRemoveBgVersion {
			t.Errorf("unexpected version %s", req.Version)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"output": "https://replicate.delivery/out.png",
		})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL)
	out, err := c.Predict(context.Background(), "r8_test", DefaultRemoveBgVersion,
		map[string]interface{}{"image": "https://example.com/in.png"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	url, err := OutputURL(out)
	if err != nil {
		t.Fatalf("OutputURL: %v", err)
	}
	if url != "https://replicate.delivery/out.png" {
		t.Errorf("unexpected output URL %s", url)
	}
}

func TestPredict_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL)
	_, err := c.Predict(context.Background(), "r8_bad", DefaultRemoveBgVersion, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := procerr.KindOf(err); kind != procerr.KindCredentialInvalid {
		t.Errorf("expected credential_invalid, got %s", kind)
	}
}

func TestPredict_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"rate limit"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL)
	_, err := c.Predict(context.Background(), "r8_test", DefaultRemoveBgVersion, nil)
	if kind := procerr.KindOf(err); kind != procerr.KindRateLimited {
		t.Errorf("expected rate_limited, got %s", kind)
	}
}

func TestPredict_NoOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"output": nil})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL)
	_, err := c.Predict(context.Background(), "r8_test", DefaultRemoveBgVersion, nil)
	if kind := procerr.KindOf(err); kind != procerr.KindInferenceFailed {
		t.Errorf("expected inference_failed, got %s", kind)
	}
}

func TestOutputURL_Array(t *testing.T) {
	url, err := OutputURL(json.RawMessage(`["https://replicate.delivery/gen.png"]`))
	if err != nil {
		t.Fatalf("OutputURL: %v", err)
	}
	if url != "https://replicate.delivery/gen.png" {
		t.Errorf("unexpected URL %s", url)
	}

	if _, err := OutputURL(json.RawMessage(`[]`)); err == nil {
		t.Error("expected error for empty array output")
	}
}
