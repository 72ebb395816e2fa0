package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatclerk/chatclerk/internal/api/middleware"
)

func authedHandler(t *testing.T, auth *middleware.APIKeyAuth) http.Handler {
	t.Helper()
	return auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		envKeys    string
		path       string
		authHeader string
		apiKeyHdr  string
		wantStatus int
	}{
		{
			name:       "disabled auth lets admin through",
			envKeys:    "",
			path:       "/admin/sessions",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid bearer key",
			envKeys:    "key-one,key-two",
			path:       "/admin/sessions",
			authHeader: "Bearer key-one",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid x-api-key header",
			envKeys:    "key-one,key-two",
			path:       "/admin/escalations",
			apiKeyHdr:  "key-two",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong key rejected",
			envKeys:    "key-one",
			path:       "/admin/stats",
			authHeader: "Bearer nope",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing key rejected",
			envKeys:    "key-one",
			path:       "/admin/knowledge",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "chat surface stays open",
			envKeys:    "key-one",
			path:       "/api/v1/chat",
			wantStatus: http.StatusOK,
		},
		{
			name:       "webhook surface stays open",
			envKeys:    "key-one",
			path:       "/webhook",
			wantStatus: http.StatusOK,
		},
		{
			name:       "health probe stays open",
			envKeys:    "key-one",
			path:       "/health",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CHATCLERK_API_KEYS", tt.envKeys)

			auth := middleware.NewAPIKeyAuth()
			if wantEnabled := tt.envKeys != ""; auth.Enabled() != wantEnabled {
				t.Fatalf("Enabled() = %v, want %v", auth.Enabled(), wantEnabled)
			}

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.apiKeyHdr != "" {
				req.Header.Set("X-API-Key", tt.apiKeyHdr)
			}
			w := httptest.NewRecorder()
			authedHandler(t, auth).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAPIKeyAuth_UnauthorizedResponseShape(t *testing.T) {
	t.Setenv("CHATCLERK_API_KEYS", "key-one")

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	w := httptest.NewRecorder()
	authedHandler(t, middleware.NewAPIKeyAuth()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got == "" {
		t.Error("WWW-Authenticate header missing on 401")
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
}

func TestAPIKeyAuth_RuntimeKeys(t *testing.T) {
	t.Setenv("CHATCLERK_API_KEYS", "")

	auth := middleware.NewAPIKeyAuth()
	if auth.Enabled() {
		t.Fatal("Enabled() = true with no configured keys")
	}

	auth.AddKey("runtime-key")
	if !auth.Enabled() {
		t.Error("Enabled() = false after AddKey")
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	req.Header.Set("X-API-Key", "runtime-key")
	w := httptest.NewRecorder()
	authedHandler(t, auth).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("runtime key: status = %d, want 200", w.Code)
	}

	auth.RemoveKey("runtime-key")
	if auth.Enabled() {
		t.Error("Enabled() = true after removing the last key")
	}
}
