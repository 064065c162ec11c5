package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/drewdunne/docshub/internal/config"
	"github.com/drewdunne/docshub/internal/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	return cfg
}

func TestNewServer(t *testing.T) {
	srv := New(testConfig(t), nil, nil)
	if srv == nil {
		t.Fatal("New() returned nil")
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Repos = []config.RepoConfig{{Name: "handbook", Type: config.TypeLocal, Path: "."}}
	srv := New(cfg, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}
	if contentType := rec.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("GET /health Content-Type = %q, want %q", contentType, "application/json")
	}

	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("GET /health status = %q, want 'ok'", health.Status)
	}
	if ready, _ := health.Checks["cache_dir"].(bool); !ready {
		t.Error("GET /health cache_dir check should be true")
	}
	if repos, _ := health.Checks["repos"].(float64); repos != 1 {
		t.Errorf("GET /health repos = %v, want 1", health.Checks["repos"])
	}
}

func TestServer_HealthEndpoint_DegradedStatus(t *testing.T) {
	cfg := testConfig(t)
	// A regular file where the cache directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg.CacheDir = filepath.Join(blocker, "cache")
	srv := New(cfg, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("GET /health status = %q, want 'degraded' when the cache dir is unusable", health.Status)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	metrics.Reset()
	metrics.CommentPosted()
	srv := New(testConfig(t), nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var m metrics.Metrics
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("Failed to parse metrics response: %v", err)
	}
	if m.CommentsPosted != 1 {
		t.Errorf("comments_posted = %d, want 1", m.CommentsPosted)
	}
}

func TestServer_RequestID(t *testing.T) {
	srv := New(testConfig(t), nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("response should carry a generated request ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request ID = %q, want %q", got, "abc-123")
	}
}

func TestServer_AccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	srv := New(testConfig(t), nil, zap.New(core))

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("access log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusNotFound) {
		t.Errorf("status = %v, want 404", fields["status"])
	}
	if fields["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want req-1", fields["request_id"])
	}
}

func TestServer_CORS(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.CORSOrigins = []string{"https://docs.example.com"}
	srv := New(cfg, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://docs.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://docs.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin for unknown origin = %q, want empty", got)
	}
}
