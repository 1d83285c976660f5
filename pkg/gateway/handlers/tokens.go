package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mbio-ai/interviewkit/pkg/gateway/apierror"
	"github.com/mbio-ai/interviewkit/pkg/gateway/config"
	"github.com/mbio-ai/interviewkit/pkg/gateway/mw"
	"github.com/mbio-ai/interviewkit/pkg/interview/token"
)

const maxTokenBodyBytes = 64 << 10

// Minter signs LiveKit access tokens.
type Minter interface {
	Mint(room, identity, name, metadata string) (string, error)
}

// Spawner starts a server-side observer session for a room.
type Spawner interface {
	Spawn(ctx context.Context, room, participant, briefing string) (string, error)
}

// TokensHandler serves POST /v1/token: mints a join credential for the
// caller and spawns the observing session that records the interview.
type TokensHandler struct {
	Config   config.Config
	Minter   Minter
	Observer Spawner // nil disables server-side observation
	Logger   *slog.Logger
}

type tokenResponse struct {
	Token     string `json:"token"`
	URL       string `json:"url"`
	RoomName  string `json:"room_name"`
	SessionID string `json:"session_id,omitempty"`
}

func (h TokensHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	var req token.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTokenBodyBytes))
	if err := dec.Decode(&req); err != nil {
		apierror.WriteJSON(w, http.StatusBadRequest, &apierror.Error{
			Type:      apierror.ErrInvalidRequest,
			Message:   "invalid json body",
			RequestID: reqID,
		})
		return
	}

	name := strings.TrimSpace(req.ParticipantName)
	if name == "" {
		apierror.WriteJSON(w, http.StatusBadRequest, &apierror.Error{
			Type:      apierror.ErrInvalidRequest,
			Message:   "participant_name is required",
			Param:     "participant_name",
			RequestID: reqID,
		})
		return
	}

	room := strings.TrimSpace(req.RoomName)
	if room == "" {
		room = "interview-" + uuid.NewString()
	}
	identity := strings.TrimSpace(req.ParticipantIdentity)
	if identity == "" {
		identity = name + "-" + uuid.NewString()[:8]
	}

	jwt, err := h.Minter.Mint(room, identity, name, req.Briefing)
	if err != nil {
		h.Logger.Error("token mint failed", "request_id", reqID, "error", err)
		apierror.Write(w, err, reqID)
		return
	}

	resp := tokenResponse{Token: jwt, URL: h.Config.LiveKitURL, RoomName: room}
	if h.Observer != nil {
		sessionID, err := h.Observer.Spawn(r.Context(), room, name, req.Briefing)
		if err != nil {
			// The caller can still join; observation is best-effort.
			h.Logger.Error("observer spawn failed", "request_id", reqID, "room", room, "error", err)
		} else {
			resp.SessionID = sessionID
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}
