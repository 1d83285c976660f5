package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mbio-ai/interviewkit/pkg/gateway/apierror"
	"github.com/mbio-ai/interviewkit/pkg/gateway/mw"
	"github.com/mbio-ai/interviewkit/pkg/interview/session"
	"github.com/mbio-ai/interviewkit/pkg/interview/sessions"
	"github.com/mbio-ai/interviewkit/pkg/interview/store"
)

// Archive is the read side of the session store.
type Archive interface {
	GetSession(ctx context.Context, id string) (*store.Record, error)
	ListSessions(ctx context.Context, limit int) ([]*store.Record, error)
}

// SessionsHandler serves GET /v1/sessions and GET /v1/sessions/{id}.
type SessionsHandler struct {
	Registry *sessions.Registry
	Archive  Archive // nil when persistence is disabled
	Logger   *slog.Logger
}

type sessionList struct {
	Live     []session.Snapshot `json:"live"`
	Archived []*store.Record    `json:"archived,omitempty"`
}

func (h SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	out := sessionList{Live: h.Registry.Snapshots()}
	if h.Archive != nil {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		records, err := h.Archive.ListSessions(r.Context(), limit)
		if err != nil {
			h.Logger.Error("session list failed", "request_id", reqID, "error", err)
			apierror.Write(w, err, reqID)
			return
		}
		out.Archived = records
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(out)
}

func (h SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	id := r.PathValue("id")

	if ctrl := h.Registry.Get(id); ctrl != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(ctrl.Snapshot())
		return
	}

	if h.Archive == nil {
		apierror.Write(w, store.ErrNotFound, reqID)
		return
	}
	rec, err := h.Archive.GetSession(r.Context(), id)
	if err != nil {
		apierror.Write(w, err, reqID)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(rec)
}
