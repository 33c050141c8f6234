package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/removin/removin/internal/procerr"
)

func TestHTTPVerifier_ValidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["idToken"] != "good-token" {
			t.Errorf("unexpected idToken %q", req["idToken"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"users": []map[string]string{{"localId": "user-123"}},
		})
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "test-key")
	uid, err := v.Verify(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}
}

func TestHTTPVerifier_RejectedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"INVALID_ID_TOKEN"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "")
	_, err := v.Verify(context.Background(), "bad-token")
	if err == nil {
		t.Fatal("expected error for rejected token")
	}
	if kind := procerr.KindOf(err); kind != procerr.KindCredentialInvalid {
		t.Errorf("expected credential_invalid, got %s", kind)
	}
}

func TestHTTPVerifier_EmptyBearer(t *testing.T) {
	v := NewHTTPVerifier("http://unused.invalid", "")
	_, err := v.Verify(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty bearer")
	}
	if kind := procerr.KindOf(err); kind != procerr.KindCredentialMissing {
		t.Errorf("expected credential_missing, got %s", kind)
	}
}

func TestHTTPVerifier_NoUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"users": []interface{}{}})
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "")
	_, err := v.Verify(context.Background(), "orphan-token")
	if err == nil {
		t.Fatal("expected error when lookup returns no users")
	}
}

func TestStaticVerifier(t *testing.T) {
	v := &StaticVerifier{UID: "dev-user"}

	uid, err := v.Verify(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uid != "dev-user" {
		t.Errorf("expected dev-user, got %s", uid)
	}

	if _, err := v.Verify(context.Background(), ""); err == nil {
		t.Error("expected error for empty bearer")
	}
}
