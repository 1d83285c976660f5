package mw

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mbio-ai/interviewkit/pkg/gateway/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

	if seen == "" || !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id=%q, want generated req_ prefix", seen)
	}
	if got := rr.Header().Get("X-Request-ID"); got != seen {
		t.Fatalf("header id=%q, context id=%q", got, seen)
	}
}

func TestRequestID_PreservesCallerID(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("X-Request-ID", "req_caller")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "req_caller" {
		t.Fatalf("request id=%q, want caller-supplied value", seen)
	}
}

func TestAuth_RequiredRejectsMissingBearer(t *testing.T) {
	t.Parallel()

	h := Auth(config.Config{AuthMode: config.AuthModeRequired, APIKeys: map[string]struct{}{"sk-test": {}}}, okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/token", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_RequiredRejectsUnknownKey(t *testing.T) {
	t.Parallel()

	h := Auth(config.Config{AuthMode: config.AuthModeRequired, APIKeys: map[string]struct{}{"sk-test": {}}}, okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/token", nil)
	req.Header.Set("Authorization", "Bearer sk-wrong")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_RequiredAcceptsValidKey(t *testing.T) {
	t.Parallel()

	h := Auth(config.Config{AuthMode: config.AuthModeRequired, APIKeys: map[string]struct{}{"sk-test": {}}}, okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/token", nil)
	req.Header.Set("Authorization", "bearer sk-test") // scheme is case-insensitive
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_OptionalPassesAnonymous(t *testing.T) {
	t.Parallel()

	h := Auth(config.Config{AuthMode: config.AuthModeOptional, APIKeys: map[string]struct{}{"sk-test": {}}}, okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_OptionalStillRejectsBadKey(t *testing.T) {
	t.Parallel()

	h := Auth(config.Config{AuthMode: config.AuthModeOptional, APIKeys: map[string]struct{}{"sk-test": {}}}, okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer sk-wrong")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestRecover_Returns500(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recover(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestCORS_AllowsListedOriginAndPreflight(t *testing.T) {
	t.Parallel()

	cfg := config.Config{CORSAllowedOrigins: map[string]struct{}{"https://app.example.com": {}}}
	h := CORS(cfg, okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/token", nil)
	req.Header.Set("Origin", "https://app.example.com")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestCORS_IgnoresUnlistedOrigin(t *testing.T) {
	t.Parallel()

	cfg := config.Config{CORSAllowedOrigins: map[string]struct{}{"https://app.example.com": {}}}
	h := CORS(cfg, okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow-origin=%q, want unset", got)
	}
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d, request should still pass through", rr.Code)
	}
}

func TestAccessLog_RecordsStatus(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

	if !strings.Contains(buf.String(), "status=418") {
		t.Fatalf("access log missing status: %q", buf.String())
	}
}
