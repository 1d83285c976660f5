package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mbio-ai/interviewkit/pkg/gateway/config"
	"github.com/mbio-ai/interviewkit/pkg/interview/session"
	"github.com/mbio-ai/interviewkit/pkg/interview/transport"
)

type stubAdapter struct {
	mu     sync.Mutex
	events chan transport.Event
	closed bool
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{events: make(chan transport.Event, 16)}
}

func (a *stubAdapter) Connect(ctx context.Context, url, tok string) error { return nil }

func (a *stubAdapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
}

func (a *stubAdapter) SetMicrophoneEnabled(enabled bool) error { return nil }
func (a *stubAdapter) PublishData(payload []byte) error        { return nil }
func (a *stubAdapter) Events() <-chan transport.Event          { return a.events }

func testConfig() config.Config {
	return config.Config{
		Addr:     "127.0.0.1:0",
		AuthMode: config.AuthModeDisabled,
		APIKeys:  map[string]struct{}{},

		CORSAllowedOrigins: map[string]struct{}{},

		LiveKitURL:       "wss://rooms.example.com",
		LiveKitAPIKey:    "key",
		LiveKitAPISecret: "secret-secret-secret-secret-secret",
		TokenTTL:         time.Hour,

		TotalQuestions:    5,
		PhaseLabels:       []string{"intro", "wrap-up"},
		AgentMarker:       "agent",
		FarewellDelay:     4 * time.Second,
		CompleteDelay:     2 * time.Second,
		MaxFarewellRearms: 5,
		StartTimeout:      time.Second,

		ObservePollInterval: 50 * time.Millisecond,
		ObserveWriteTimeout: time.Second,
		ObserveMaxConnDur:   time.Minute,

		ReadHeaderTimeout:   time.Second,
		ReadTimeout:         time.Second,
		ShutdownGracePeriod: 5 * time.Second,
	}
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(cfg, logger, Options{
		Adapters: func() transport.Adapter { return newStubAdapter() },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ts := httptest.NewServer(gw.Handler())
	t.Cleanup(ts.Close)
	return gw, ts
}

func TestTokenFlow_SpawnsObserverSession(t *testing.T) {
	t.Parallel()

	gw, ts := newTestServer(t, testConfig())

	resp, err := http.Post(ts.URL+"/v1/token", "application/json",
		strings.NewReader(`{"participant_name":"Ada","briefing":"backend role"}`))
	if err != nil {
		t.Fatalf("POST /v1/token error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	var out struct {
		Token     string `json:"token"`
		URL       string `json:"url"`
		RoomName  string `json:"room_name"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Token == "" || out.URL != "wss://rooms.example.com" {
		t.Fatalf("response=%+v", out)
	}
	if out.SessionID == "" || out.SessionID != out.RoomName {
		t.Fatalf("session_id=%q room=%q", out.SessionID, out.RoomName)
	}

	// The spawned observer comes up asynchronously; wait for it to listen.
	deadline := time.Now().Add(5 * time.Second)
	for {
		ctrl := gw.Registry().Get(out.SessionID)
		if ctrl != nil && ctrl.State() == session.StateListening {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("observer session never reached listening")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// And it is visible on the sessions API.
	listResp, err := http.Get(ts.URL + "/v1/sessions/" + out.SessionID)
	if err != nil {
		t.Fatalf("GET session error: %v", err)
	}
	defer listResp.Body.Close()
	var snap session.Snapshot
	if err := json.NewDecoder(listResp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.SessionID != out.SessionID || snap.State != "listening" {
		t.Fatalf("snapshot=%+v", snap)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	gw.Shutdown(shutdownCtx)
	if gw.Registry().Count() != 0 {
		t.Fatalf("registry count=%d after shutdown", gw.Registry().Count())
	}
}

func TestAuthRequired_GuardsAllRoutes(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AuthMode = config.AuthModeRequired
	cfg.APIKeys = map[string]struct{}{"sk-live": {}}
	_, ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status=%d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer sk-live")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authed status=%d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "interview_sessions_started_total") {
		t.Fatalf("metrics body missing session counters")
	}
}

func TestRequestIDPropagatesToResponses(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, testConfig())

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "req_external")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req_external" {
		t.Fatalf("X-Request-ID=%q", got)
	}
}
