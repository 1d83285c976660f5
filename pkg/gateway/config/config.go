package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// LiveKit credentials for minting room tokens.
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string
	TokenTTL         time.Duration

	// Optional PostgreSQL DSN; empty disables persistence.
	DatabaseURL string

	// Interview defaults applied to token-spawned observer sessions.
	TotalQuestions    int
	PhaseLabels       []string
	AgentMarker       string
	FarewellDelay     time.Duration
	CompleteDelay     time.Duration
	MaxFarewellRearms int
	StartTimeout      time.Duration

	// Observer WebSocket (/v1/sessions/{id}/observe).
	ObservePollInterval time.Duration
	ObserveWriteTimeout time.Duration
	ObserveMaxConnDur   time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("INTERVIEW_ADDR", ":8080"),
		AuthMode:            AuthMode(envOr("INTERVIEW_AUTH_MODE", string(AuthModeDisabled))),
		APIKeys:             make(map[string]struct{}),
		CORSAllowedOrigins:  make(map[string]struct{}),
		LiveKitURL:          os.Getenv("LIVEKIT_URL"),
		LiveKitAPIKey:       os.Getenv("LIVEKIT_API_KEY"),
		LiveKitAPISecret:    os.Getenv("LIVEKIT_API_SECRET"),
		TokenTTL:            envDurationOr("INTERVIEW_TOKEN_TTL", 2*time.Hour),
		DatabaseURL:         os.Getenv("INTERVIEW_DATABASE_URL"),
		TotalQuestions:      envIntOr("INTERVIEW_TOTAL_QUESTIONS", 0),
		AgentMarker:         envOr("INTERVIEW_AGENT_MARKER", "agent"),
		FarewellDelay:       envDurationOr("INTERVIEW_FAREWELL_DELAY", 4*time.Second),
		CompleteDelay:       envDurationOr("INTERVIEW_COMPLETE_DELAY", 2*time.Second),
		MaxFarewellRearms:   envIntOr("INTERVIEW_MAX_FAREWELL_REARMS", 5),
		StartTimeout:        envDurationOr("INTERVIEW_START_TIMEOUT", 15*time.Second),
		ObservePollInterval: envDurationOr("INTERVIEW_OBSERVE_POLL_INTERVAL", 500*time.Millisecond),
		ObserveWriteTimeout: envDurationOr("INTERVIEW_OBSERVE_WRITE_TIMEOUT", 5*time.Second),
		ObserveMaxConnDur:   envDurationOr("INTERVIEW_OBSERVE_MAX_DURATION", 2*time.Hour),
		ReadHeaderTimeout:   envDurationOr("INTERVIEW_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("INTERVIEW_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("INTERVIEW_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("INTERVIEW_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("INTERVIEW_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("INTERVIEW_API_KEYS must be set when INTERVIEW_AUTH_MODE=required")
	}

	for _, origin := range splitCSV(os.Getenv("INTERVIEW_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	cfg.PhaseLabels = splitCSV(envOr("INTERVIEW_PHASE_LABELS", "intro,experience,skills,wrap-up"))

	if cfg.LiveKitURL == "" {
		return Config{}, fmt.Errorf("LIVEKIT_URL is required")
	}
	if cfg.LiveKitAPIKey == "" || cfg.LiveKitAPISecret == "" {
		return Config{}, fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_TOKEN_TTL must be > 0")
	}
	if cfg.TotalQuestions < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_TOTAL_QUESTIONS must be >= 0")
	}
	if cfg.FarewellDelay <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_FAREWELL_DELAY must be > 0")
	}
	if cfg.CompleteDelay <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_COMPLETE_DELAY must be > 0")
	}
	if cfg.MaxFarewellRearms <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_FAREWELL_REARMS must be > 0")
	}
	if cfg.StartTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_START_TIMEOUT must be > 0")
	}
	if cfg.ObservePollInterval <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_OBSERVE_POLL_INTERVAL must be > 0")
	}
	if cfg.ObserveWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_OBSERVE_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ObserveMaxConnDur <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_OBSERVE_MAX_DURATION must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Accept bare millisecond counts.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
