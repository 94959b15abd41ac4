package http

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"time"

	"go.uber.org/zap"

	"go-avocado-analytics-ui/internal/config"
	"go-avocado-analytics-ui/internal/connectors/seriesdb"
	"go-avocado-analytics-ui/internal/dashboard"
)

// Server wraps an HTTP server, the dashboard engine and the live sessions.
type Server struct {
	httpServer *nethttp.Server
	handler    nethttp.Handler
	logger     *zap.Logger

	engine   *dashboard.Engine
	registry *dashboard.Registry
	source   dashboard.SeriesSource
	store    *seriesdb.Store

	sweepEvery time.Duration
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// NewServer creates a configured HTTP server with v1 endpoints.
func NewServer(cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var store *seriesdb.Store
	var source dashboard.SeriesSource = dashboard.MockSource{}
	switch cfg.SeriesSource {
	case config.SourceMySQL:
		createdStore, err := seriesdb.NewMySQLStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("open mysql series store: %w", err)
		}
		store = createdStore
	case config.SourceSQLite:
		createdStore, err := seriesdb.NewSQLiteStore(cfg.SQLitePath, cfg.DBQueryTimeout)
		if err != nil {
			return nil, fmt.Errorf("open sqlite series store: %w", err)
		}
		seeded, err := createdStore.SeedFrom(context.Background(), dashboard.MockSource{})
		if err != nil {
			_ = createdStore.Close()
			return nil, fmt.Errorf("seed sqlite series store: %w", err)
		}
		if seeded > 0 {
			logger.Info("seeded series table", zap.String("path", cfg.SQLitePath), zap.Int("series", seeded))
		}
		store = createdStore
	}
	if store != nil {
		source = store
	}
	source = instrumentSource(source)

	engine, err := dashboard.New(source, cfg.ProgressInterval,
		dashboard.WithLogger(logger.Named("engine")),
		dashboard.WithObserver(recordBindingRun),
	)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("resolve bindings: %w", err)
	}
	registry := dashboard.NewRegistry(engine, cfg.SessionIdleTTL, logger.Named("sessions"))

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		logger:     logger,
		engine:     engine,
		registry:   registry,
		source:     source,
		store:      store,
		sweepEvery: cfg.SessionSweepInterval,
		baseCtx:    baseCtx,
		cancel:     cancel,
	}

	page, err := newPageRenderer(dashboard.BuildPage(engine.Controls()), cfg.Debug)
	if err != nil {
		cancel()
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	mux := nethttp.NewServeMux()

	mux.Handle("/", page)
	mux.HandleFunc("/favicon.ico", faviconHandler)
	mux.Handle("/metrics", metricsHandler(registry))
	mux.HandleFunc("/api/v1/metrics/app", appMetricsSummaryHandler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler)
	mux.HandleFunc("/api/v1/sessions", createSessionHandler(registry))
	mux.HandleFunc("/api/v1/sessions/", sessionRouter(registry, s.wsHandler))
	mux.HandleFunc("/api/v1/figures/", staticFigureHandler())
	mux.HandleFunc("/api/v1/controls", controlsHandler(engine))
	mux.HandleFunc("/api/v1/status/services", servicesStatusHandler(source, store, registry))
	if cfg.Debug {
		mux.HandleFunc("/api/v1/engine/bindings", bindingsHandler(engine))
	}

	s.handler = loggingMiddleware(logger.Named("http"), observabilityMiddleware(mux))
	s.httpServer = &nethttp.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() nethttp.Handler { return s.handler }

// Registry exposes the live sessions.
func (s *Server) Registry() *dashboard.Registry { return s.registry }

// ListenAndServe starts the session janitor and the HTTP server.
func (s *Server) ListenAndServe() error {
	go s.startSessionJanitor(s.baseCtx)
	s.logger.Info("listening",
		zap.String("addr", s.httpServer.Addr),
		zap.String("series_source", s.source.Name()))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server. Open WebSocket streams are
// closed through the base context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.httpServer.Shutdown(ctx)
	if s.store != nil {
		_ = s.store.Close()
	}
	return err
}

func (s *Server) startSessionJanitor(ctx context.Context) {
	interval := s.sweepEvery
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.Sweep()
		}
	}
}

func healthHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func readyHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ready",
	})
}

func loggingMiddleware(logger *zap.Logger, next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: nethttp.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w nethttp.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
