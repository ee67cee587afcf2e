package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/confidant/internal/config"
)

var fixedNow = time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	settings := config.Resolve("development")
	settings.SecretKey = "super-secret"
	return config.Config{
		Environment: "development",
		Profile:     config.Development,
		Known:       true,
		Settings:    settings,
	}
}

func setupTestRouter(t *testing.T) http.Handler {
	t.Helper()

	handler := NewHandler(testConfig(), WithClock(func() time.Time { return fixedNow }))
	logger := zaptest.NewLogger(t)
	return NewRouter(handler, logger, WithLogging(false), WithRateLimit(0, 0))
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var body T
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := requestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %s", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	rec := get(t, router, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decode[healthResponse](t, rec)
	if body.Status != "ok" || body.Profile != "development" {
		t.Fatalf("unexpected health body: %+v", body)
	}
	if !body.Timestamp.Equal(fixedNow) {
		t.Fatalf("expected timestamp %s, got %s", fixedNow, body.Timestamp)
	}
}

func TestGetConfigRedactsSecret(t *testing.T) {
	router := setupTestRouter(t)

	rec := get(t, router, "/api/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "super-secret") {
		t.Fatalf("secret leaked in response: %s", rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}

	body := decode[configResponse](t, rec)
	if body.Environment != "development" || body.Profile != "development" || !body.Known {
		t.Fatalf("unexpected selection: %+v", body)
	}
	s := body.Settings
	if !s.Debug || s.Testing || s.LogLevel != "DEBUG" || s.Port != 80 || s.Host != "0.0.0.0" {
		t.Fatalf("unexpected settings: %+v", s)
	}
	if s.RequestTimeoutSeconds != 30 || s.ConnectionTimeoutSeconds != 10 {
		t.Fatalf("unexpected timeouts: %+v", s)
	}
}

func TestListProfiles(t *testing.T) {
	router := setupTestRouter(t)

	rec := get(t, router, "/api/profiles")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decode[profilesResponse](t, rec)
	got := make(map[string]string, len(body.Profiles))
	for _, p := range body.Profiles {
		got[p.Name] = p.Profile
	}
	want := map[string]string{
		"default":     "production",
		"development": "development",
		"production":  "production",
		"testing":     "testing",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("expected %s -> %s, got %s", k, v, got[k])
		}
	}
}

func TestPreviewProfile(t *testing.T) {
	router := setupTestRouter(t)

	tests := []struct {
		name        string
		wantProfile string
		wantKnown   bool
		wantDebug   bool
		wantTesting bool
	}{
		{name: "testing", wantProfile: "testing", wantKnown: true, wantDebug: true, wantTesting: true},
		{name: "production", wantProfile: "production", wantKnown: true},
		{name: "default", wantProfile: "production", wantKnown: true},
		{name: "developmnet", wantProfile: "production", wantKnown: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, router, "/api/profiles/"+tt.name)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}

			body := decode[configResponse](t, rec)
			if body.Environment != tt.name || body.Profile != tt.wantProfile || body.Known != tt.wantKnown {
				t.Fatalf("unexpected selection: %+v", body)
			}
			if body.Settings.Debug != tt.wantDebug || body.Settings.Testing != tt.wantTesting {
				t.Fatalf("unexpected flags: %+v", body.Settings)
			}
			if body.Settings.SecretKey == config.PlaceholderSecretKey {
				t.Fatalf("expected placeholder secret to be redacted too")
			}
		})
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	router := setupTestRouter(t)

	if rec := get(t, router, "/api/unknown"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestConfigRejectsWrongMethod(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/config", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
