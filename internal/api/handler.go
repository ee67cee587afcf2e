package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/eugenenazirov/confidant/internal/config"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Handler exposes the active configuration and profile previews over HTTP.
type Handler struct {
	active config.Config

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler serving the given loaded configuration.
func NewHandler(active config.Config, opts ...HandlerOption) *Handler {
	h := &Handler{
		active: active,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Profile:   string(h.active.Profile),
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := configResponse{
		Environment: h.active.Environment,
		Profile:     string(h.active.Profile),
		Known:       h.active.Known,
		Settings:    newSettingsBody(h.active.Settings),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	_ = r
	keys := config.Profiles()
	resp := profilesResponse{Profiles: make([]profileEntry, 0, len(keys))}
	for _, key := range keys {
		p, _ := config.Lookup(key)
		resp.Profiles = append(resp.Profiles, profileEntry{Name: key, Profile: string(p)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePreviewProfile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, known := config.Lookup(name)
	resp := configResponse{
		Environment: name,
		Profile:     string(p),
		Known:       known,
		Settings:    newSettingsBody(config.Resolve(name)),
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type settingsBody struct {
	Debug                    bool   `json:"debug"`
	Testing                  bool   `json:"testing"`
	SecretKey                string `json:"secretKey"`
	Host                     string `json:"host"`
	Port                     int    `json:"port"`
	LogFile                  string `json:"logFile"`
	LogLevel                 string `json:"logLevel"`
	RequestTimeoutSeconds    int    `json:"requestTimeoutSeconds"`
	ConnectionTimeoutSeconds int    `json:"connectionTimeoutSeconds"`
}

// newSettingsBody renders a record for the wire. The secret never leaves
// the process.
func newSettingsBody(rec config.Record) settingsBody {
	rec = rec.Redacted()
	return settingsBody{
		Debug:                    rec.Debug,
		Testing:                  rec.Testing,
		SecretKey:                rec.SecretKey,
		Host:                     rec.Host,
		Port:                     rec.Port,
		LogFile:                  rec.LogFile,
		LogLevel:                 string(rec.LogLevel),
		RequestTimeoutSeconds:    rec.RequestTimeoutSeconds,
		ConnectionTimeoutSeconds: rec.ConnectionTimeoutSeconds,
	}
}

type configResponse struct {
	Environment string       `json:"environment"`
	Profile     string       `json:"profile"`
	Known       bool         `json:"known"`
	Settings    settingsBody `json:"settings"`
}

type profileEntry struct {
	Name    string `json:"name"`
	Profile string `json:"profile"`
}

type profilesResponse struct {
	Profiles []profileEntry `json:"profiles"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Profile   string    `json:"profile"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}
