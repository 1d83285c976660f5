package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbio-ai/interviewkit/pkg/gateway/apierror"
	"github.com/mbio-ai/interviewkit/pkg/gateway/config"
	"github.com/mbio-ai/interviewkit/pkg/gateway/mw"
	"github.com/mbio-ai/interviewkit/pkg/interview/sessions"
	"github.com/mbio-ai/interviewkit/pkg/interview/store"
)

// ObserveHandler serves GET /v1/sessions/{id}/observe: a WebSocket that
// streams session snapshots whenever the live state changes.
type ObserveHandler struct {
	Config   config.Config
	Registry *sessions.Registry
	Logger   *slog.Logger

	Upgrader websocket.Upgrader
}

func NewObserveHandler(cfg config.Config, registry *sessions.Registry, logger *slog.Logger) *ObserveHandler {
	h := &ObserveHandler{Config: cfg, Registry: registry, Logger: logger}
	h.Upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(cfg.CORSAllowedOrigins) == 0 {
				return true
			}
			_, ok := cfg.CORSAllowedOrigins[r.Header.Get("Origin")]
			return ok
		},
	}
	return h
}

func (h *ObserveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	id := r.PathValue("id")

	ctrl := h.Registry.Get(id)
	if ctrl == nil {
		apierror.Write(w, store.ErrNotFound, reqID)
		return
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("observe upgrade failed", "request_id", reqID, "error", err)
		return
	}
	defer conn.Close()

	// Reader only consumes control frames and detects the client leaving.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.Config.ObservePollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(h.Config.ObserveMaxConnDur)
	defer deadline.Stop()

	var last []byte
	send := func() bool {
		payload, err := json.Marshal(ctrl.Snapshot())
		if err != nil {
			return false
		}
		if string(payload) == string(last) {
			return true
		}
		last = payload
		_ = conn.SetWriteDeadline(time.Now().Add(h.Config.ObserveWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return false
		}
		return true
	}

	if !send() {
		return
	}
	done := ctrl.Done()
	for {
		select {
		case <-ticker.C:
			if !send() {
				return
			}
		case <-done:
			// Session tore down; push the terminal snapshot and finish.
			send()
			_ = conn.SetWriteDeadline(time.Now().Add(h.Config.ObserveWriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
			return
		case <-clientGone:
			return
		case <-deadline.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.Config.ObserveWriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "max duration reached"))
			return
		case <-r.Context().Done():
			return
		}
	}
}
