package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveCORS(t *testing.T, cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	called := false
	handler := CORSMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/graphql", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if cfg.Enabled && method == http.MethodOptions && origin != "" {
		assert.False(t, called, "preflight must not reach the GraphQL handler")
	}
	return rr
}

func TestCORSMiddleware_Disabled(t *testing.T) {
	rr := serveCORS(t, CORSConfig{Enabled: false}, http.MethodGet, "http://example.com")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	rr := serveCORS(t, CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST"},
	}, http.MethodPost, "http://localhost:3000")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))
	assert.Equal(t, RequestIDHeader, rr.Header().Get("Access-Control-Expose-Headers"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Methods"), "methods are only sent on preflight")
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	rr := serveCORS(t, CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         600,
	}, http.MethodOptions, "http://localhost:3000")

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rr.Header().Get("Access-Control-Max-Age"))
}

func TestCORSMiddleware_Rejections(t *testing.T) {
	cfg := CORSConfig{Enabled: true, AllowedOrigins: []string{"http://localhost:3000"}}

	for _, method := range []string{http.MethodPost, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			rr := serveCORS(t, cfg, method, "http://evil.example")
			assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
			if method == http.MethodOptions {
				assert.Equal(t, http.StatusNoContent, rr.Code)
			} else {
				assert.Equal(t, http.StatusOK, rr.Code)
			}
		})
	}
}

func TestCORSMiddleware_WildcardNeverSendsCredentials(t *testing.T) {
	rr := serveCORS(t, CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{" * "},
		AllowCredentials: true,
	}, http.MethodGet, "http://anything.example")

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Vary"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSMiddleware_Credentials(t *testing.T) {
	rr := serveCORS(t, CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
	}, http.MethodGet, "http://localhost:3000")

	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSMiddleware_NoOriginPassesThrough(t *testing.T) {
	rr := serveCORS(t, CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}}, http.MethodGet, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
