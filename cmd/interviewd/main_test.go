package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/mbio-ai/interviewkit/pkg/gateway/config"
	gatewayserver "github.com/mbio-ai/interviewkit/pkg/gateway/server"
	"github.com/mbio-ai/interviewkit/pkg/interview/store"
)

func testConfig() config.Config {
	return config.Config{
		Addr:     "127.0.0.1:0",
		AuthMode: config.AuthModeDisabled,
		APIKeys:  map[string]struct{}{},

		CORSAllowedOrigins: map[string]struct{}{},

		LiveKitURL:       "wss://example.livekit.cloud",
		LiveKitAPIKey:    "key",
		LiveKitAPISecret: "secret-secret-secret-secret-secret",
		TokenTTL:         2 * time.Hour,

		TotalQuestions:    5,
		PhaseLabels:       []string{"intro", "wrap-up"},
		AgentMarker:       "agent",
		FarewellDelay:     4 * time.Second,
		CompleteDelay:     2 * time.Second,
		MaxFarewellRearms: 5,
		StartTimeout:      15 * time.Second,

		ObservePollInterval: 250 * time.Millisecond,
		ObserveWriteTimeout: 5 * time.Second,
		ObserveMaxConnDur:   2 * time.Hour,

		ReadHeaderTimeout:   time.Second,
		ReadTimeout:         time.Second,
		ShutdownGracePeriod: time.Second,
	}
}

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, daemonDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		openStore: func(ctx context.Context, dsn string) (*store.Store, error) {
			t.Fatalf("openStore should not be called when config load fails")
			return nil, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if got := stderr.String(); got == "" {
		t.Fatalf("expected stderr output for startup error")
	}
}

func TestRun_ReturnsErrorWhenStoreOpenFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.DatabaseURL = "postgres://localhost/interviews"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(context.Background(), logger, daemonDeps{
		loadConfig: func() (config.Config, error) { return cfg, nil },
		openStore: func(ctx context.Context, dsn string) (*store.Store, error) {
			if dsn != cfg.DatabaseURL {
				t.Fatalf("dsn=%q, want %q", dsn, cfg.DatabaseURL)
			}
			return nil, errors.New("connection refused")
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})
	if err == nil {
		t.Fatalf("expected error when the store cannot be opened")
	}
}

func TestBuildHTTPServer_UsesConfiguredTimeouts(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != cfg.ReadTimeout {
		t.Fatalf("ReadTimeout=%v, want %v", srv.ReadTimeout, cfg.ReadTimeout)
	}
}

func TestGatewayHandlerStack_Smoke(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := gatewayserver.New(testConfig(), logger, gatewayserver.Options{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ts := httptest.NewServer(gw.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusOK)
	}
}
