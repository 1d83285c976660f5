// Package server wires the gateway's handlers and middleware into one HTTP
// surface.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mbio-ai/interviewkit/pkg/gateway/config"
	"github.com/mbio-ai/interviewkit/pkg/gateway/handlers"
	"github.com/mbio-ai/interviewkit/pkg/gateway/mw"
	"github.com/mbio-ai/interviewkit/pkg/gateway/observer"
	"github.com/mbio-ai/interviewkit/pkg/interview/sessions"
	"github.com/mbio-ai/interviewkit/pkg/interview/store"
	"github.com/mbio-ai/interviewkit/pkg/interview/token"
)

type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	mux      *http.ServeMux
	registry *sessions.Registry
	db       *store.Store // nil when persistence is disabled
}

// Options carries optional collaborators; zero-value fields fall back to
// defaults built from cfg.
type Options struct {
	Store    *store.Store
	Adapters observer.AdapterFactory
}

func New(cfg config.Config, logger *slog.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	issuer, err := token.NewIssuer(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: sessions.NewRegistry(),
		db:       opts.Store,
	}

	var recorder observer.Recorder
	var archive handlers.Archive
	var pinger handlers.Pinger
	if opts.Store != nil {
		recorder = opts.Store
		archive = opts.Store
		pinger = opts.Store
	}

	mgr := observer.NewManager(cfg, s.registry, recorder, issuer, opts.Adapters, logger)

	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: cfg, Store: pinger})
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.Handle("POST /v1/token", handlers.TokensHandler{
		Config:   cfg,
		Minter:   issuer,
		Observer: mgr,
		Logger:   logger,
	})

	sessionsHandler := handlers.SessionsHandler{Registry: s.registry, Archive: archive, Logger: logger}
	s.mux.HandleFunc("GET /v1/sessions", sessionsHandler.List)
	s.mux.HandleFunc("GET /v1/sessions/{id}", sessionsHandler.Get)
	s.mux.Handle("GET /v1/sessions/{id}/observe", handlers.NewObserveHandler(cfg, s.registry, logger))

	return s, nil
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

func (s *Server) Registry() *sessions.Registry { return s.registry }

// Shutdown tears down every hosted observer session and waits for them to
// drain within the configured grace period.
func (s *Server) Shutdown(ctx context.Context) {
	n := s.registry.DisconnectAll()
	if n > 0 {
		s.logger.Info("disconnecting hosted sessions", "count", n)
	}
	if !s.registry.Wait(ctx) {
		s.logger.Warn("session drain timed out")
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("store close failed", "error", err)
		}
	}
}
