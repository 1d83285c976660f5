// Package observer hosts server-side interview sessions: for every room the
// gateway issues a token for, it joins an observing participant that records
// the transcript and completion result without publishing audio.
package observer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbio-ai/interviewkit/pkg/gateway/config"
	"github.com/mbio-ai/interviewkit/pkg/interview/session"
	"github.com/mbio-ai/interviewkit/pkg/interview/sessions"
	"github.com/mbio-ai/interviewkit/pkg/interview/token"
	"github.com/mbio-ai/interviewkit/pkg/interview/transport"
)

// Minter signs LiveKit access tokens locally.
type Minter interface {
	Mint(room, identity, name, metadata string) (string, error)
}

// Recorder persists session lifecycles. All methods are optional no-ops when
// persistence is disabled.
type Recorder interface {
	CreateSession(ctx context.Context, id, participant string, totalQuestions int) error
	UpdateProgress(ctx context.Context, id, state, phase string, answered int) error
	SaveResult(ctx context.Context, r session.Result) error
	MarkError(ctx context.Context, id, cause string) error
}

// AdapterFactory builds a fresh transport per observer session.
type AdapterFactory func() transport.Adapter

type Manager struct {
	cfg      config.Config
	registry *sessions.Registry
	recorder Recorder // may be nil
	minter   Minter
	adapters AdapterFactory
	logger   *slog.Logger
}

func NewManager(cfg config.Config, registry *sessions.Registry, recorder Recorder, minter Minter, adapters AdapterFactory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if adapters == nil {
		adapters = func() transport.Adapter {
			return transport.NewRoom(transport.RoomConfig{Logger: logger})
		}
	}
	return &Manager{
		cfg:      cfg,
		registry: registry,
		recorder: recorder,
		minter:   minter,
		adapters: adapters,
		logger:   logger,
	}
}

// issuerSource satisfies session.TokenSource by minting locally instead of
// calling a remote endpoint.
type issuerSource struct {
	minter Minter
	url    string
}

func (s issuerSource) Issue(ctx context.Context, req token.Request) (*token.Response, error) {
	identity := req.ParticipantIdentity
	if identity == "" {
		identity = "observer-" + req.RoomName
	}
	jwt, err := s.minter.Mint(req.RoomName, identity, req.ParticipantName, req.Briefing)
	if err != nil {
		return nil, fmt.Errorf("mint observer token: %w", err)
	}
	return &token.Response{Token: jwt, URL: s.url, RoomName: req.RoomName}, nil
}

// Spawn creates, registers, and asynchronously starts an observer session
// for the given room. Returns the session id (equal to the room name).
func (m *Manager) Spawn(ctx context.Context, room, participant, briefing string) (string, error) {
	ctrl, err := session.New(session.Dependencies{
		Tokens:  issuerSource{minter: m.minter, url: m.cfg.LiveKitURL},
		Adapter: m.adapters(),
		Logger:  m.logger.With("room", room),
		Config: session.Config{
			ParticipantName:   participant,
			RoomName:          room,
			Observer:          true,
			TotalQuestions:    m.cfg.TotalQuestions,
			PhaseLabels:       m.cfg.PhaseLabels,
			Briefing:          briefing,
			AgentMarker:       m.cfg.AgentMarker,
			FarewellDelay:     m.cfg.FarewellDelay,
			CompleteDelay:     m.cfg.CompleteDelay,
			MaxFarewellRearms: m.cfg.MaxFarewellRearms,
			StartTimeout:      m.cfg.StartTimeout,
		},
		OnComplete: func(r session.Result) {
			m.persistResult(r)
		},
	})
	if err != nil {
		return "", err
	}

	if m.recorder != nil {
		if err := m.recorder.CreateSession(ctx, room, participant, m.cfg.TotalQuestions); err != nil {
			m.logger.Warn("session row create failed", "room", room, "error", err)
		}
	}

	unregister := m.registry.Register(room, ctrl)
	go m.run(ctrl, room, unregister)
	return room, nil
}

func (m *Manager) run(ctrl *session.Controller, room string, unregister func()) {
	if err := ctrl.Start(context.Background()); err != nil {
		m.logger.Error("observer start failed", "room", room, "error", err)
		if m.recorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if derr := m.recorder.MarkError(ctx, room, err.Error()); derr != nil {
				m.logger.Warn("session error row update failed", "room", room, "error", derr)
			}
		}
		unregister()
		return
	}

	// The feed drains when the session tears down on any path.
	if done := ctrl.Done(); done != nil {
		<-done
	}

	// Completed sessions were already persisted via OnComplete; write the
	// final progress for everything else (drops, manual disconnects).
	if m.recorder != nil && ctrl.State() != session.StateTerminated {
		snap := ctrl.Snapshot()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.recorder.UpdateProgress(ctx, room, snap.State, snap.Phase, snap.AnsweredCount); err != nil {
			m.logger.Warn("session progress update failed", "room", room, "error", err)
		}
	}
	unregister()
}

func (m *Manager) persistResult(r session.Result) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.recorder.SaveResult(ctx, r); err != nil {
		m.logger.Error("session result persist failed", "session_id", r.SessionID, "error", err)
	}
}
