package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mbio-ai/interviewkit/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger is the slice of the store readiness checks need.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config config.Config
	Store  Pinger // nil when persistence is disabled
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK          bool     `json:"ok"`
		AuthMode    string   `json:"auth_mode"`
		Persistence bool     `json:"persistence"`
		Issues      []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.LiveKitURL == "" || h.Config.LiveKitAPIKey == "" || h.Config.LiveKitAPISecret == "" {
		issues = append(issues, "livekit credentials incomplete")
	}
	if h.Config.FarewellDelay <= 0 || h.Config.CompleteDelay <= 0 {
		issues = append(issues, "completion delays must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			issues = append(issues, "database unreachable")
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:          ok,
		AuthMode:    string(h.Config.AuthMode),
		Persistence: h.Store != nil,
		Issues:      issues,
	})
}
