package application

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/confidant/internal/api"
	"github.com/eugenenazirov/confidant/internal/config"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	cfg     config.Config
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server

	listener net.Listener
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	handler := api.NewHandler(cfg)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.Settings.Debug || cfg.Settings.LogLevel == config.LevelDebug),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithRequestTimeout(cfg.Settings.RequestTimeout()),
	)

	return &App{
		cfg:     cfg,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg.Settings, BuildRootHandler(apiRouter)),
	}, nil
}

// BuildRootHandler mounts the API under /api/ and answers 404 elsewhere.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.NotFoundHandler())
	return mux
}

// NewServer creates an HTTP server bound to the record's host and port.
// ConnectionTimeoutSeconds bounds header reads and idle keep-alives;
// RequestTimeoutSeconds extends the write deadline. Zero disables either.
func NewServer(rec config.Record, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(rec.Host, strconv.Itoa(rec.Port)),
		Handler:           handler,
		ReadHeaderTimeout: rec.ConnectionTimeout(),
		IdleTimeout:       rec.ConnectionTimeout(),
		WriteTimeout:      writeTimeout(rec),
	}
}

// writeTimeout leaves room after the handler deadline for the 503 body.
func writeTimeout(rec config.Record) time.Duration {
	if rec.RequestTimeoutSeconds == 0 {
		return 0
	}
	return rec.RequestTimeout() + rec.ConnectionTimeout()
}

// Start binds the listener synchronously, so address errors surface to the
// caller, then serves in a goroutine.
func (a *App) Start() error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	a.listener = ln

	a.logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("environment", a.cfg.Environment),
		zap.String("profile", string(a.cfg.Profile)),
	)
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listener address, or the configured one before Start.
func (a *App) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.server.Addr
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
