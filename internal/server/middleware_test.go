package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_CORSHeadersOnRoutes(t *testing.T) {
	tests := []struct {
		name        string
		origin      string
		method      string
		path        string
		status      int
		analyzeRuns bool
	}{
		{"health", "*", http.MethodGet, "/health", http.StatusOK, false},
		{"disease list", "https://garden.example", http.MethodGet, "/diseases", http.StatusOK, false},
		{"disease record", "*", http.MethodGet, "/diseases/late_blight", http.StatusOK, false},
		{"unknown disease keeps headers", "*", http.MethodGet, "/diseases/rust", http.StatusNotFound, false},
		{"wrong method keeps headers", "*", http.MethodPost, "/diseases", http.StatusMethodNotAllowed, false},
		{"analyze upload", "http://localhost:5173", http.MethodPost, "/analyze", http.StatusOK, true},
		{"analyze preflight", "*", http.MethodOptions, "/analyze", http.StatusOK, false},
		{"disease preflight", "*", http.MethodOptions, "/diseases/early_blight", http.StatusOK, false},
		{"no origin configured", "", http.MethodGet, "/health", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true, func(c *Config) { c.CORSOrigin = tt.origin })

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.method == http.MethodPost && tt.path == "/analyze" {
				req = uploadRequest(t, "leaf.jpg", []byte("jpeg"), nil)
			}
			w := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, tt.analyzeRuns, env.predictor.calls.Load() > 0)
		})
	}
}

func TestServer_RateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t, true, func(c *Config) {
		c.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	})
	h := env.server.Handler()

	send := func(ip string) *httptest.ResponseRecorder {
		req := uploadRequest(t, "leaf.jpg", []byte("jpeg"), nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, send("203.0.113.7").Code)

	w := send("203.0.113.7")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "minute", w.Header().Get("X-RateLimit-Type"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body RateLimitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body.Error)
	assert.Equal(t, int64(1), body.Limit)

	assert.Equal(t, http.StatusOK, send("198.51.100.2").Code)
	assert.Equal(t, int32(2), env.predictor.calls.Load())
}

func TestServer_RateLimitMiddleware_Disabled(t *testing.T) {
	server := &Server{}
	called := 0
	handler := server.rateLimitMiddleware(func(w http.ResponseWriter, r *http.Request) { called++ })
	for range 3 {
		handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/analyze", nil))
	}
	assert.Equal(t, 3, called)
}

func TestServer_HandleRateLimitError_Quota(t *testing.T) {
	env := newTestEnv(t, true, nil)
	w := httptest.NewRecorder()
	env.server.handleRateLimitError(w, &QuotaExceededError{
		Type: "data", Limit: 100, Used: 90, Resets: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "data", w.Header().Get("X-Quota-Type"))
	assert.Equal(t, "90", w.Header().Get("X-Quota-Used"))

	var body RateLimitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "quota_exceeded", body.Error)
	assert.Equal(t, "2026-01-02T00:00:00Z", body.Resets)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "9.9.9.9:1234", "1.2.3.4"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 1.2.3.4 "}, "9.9.9.9:1234", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "9.9.9.9:1234", "5.6.7.8"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}
