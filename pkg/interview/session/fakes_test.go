package session

import (
	"context"
	"sync"

	"github.com/mbio-ai/interviewkit/pkg/interview/token"
	"github.com/mbio-ai/interviewkit/pkg/interview/transport"
)

type fakeTokens struct {
	mu   sync.Mutex
	err  error
	reqs []token.Request
}

func (f *fakeTokens) Issue(ctx context.Context, req token.Request) (*token.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &token.Response{Token: "jwt", URL: "wss://rtc.test", RoomName: req.RoomName}, nil
}

func (f *fakeTokens) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeAdapter struct {
	mu          sync.Mutex
	events      chan transport.Event
	connectErr  error
	micErr      error
	publishErr  error
	micEnabled  bool
	published   [][]byte
	disconnects int
	closed      bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{events: make(chan transport.Event, 64)}
}

func (a *fakeAdapter) Connect(ctx context.Context, url, tok string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connectErr != nil {
		return a.connectErr
	}
	// Mirrors the adapter contract: a new attempt after Disconnect gets a
	// fresh event feed.
	if a.closed {
		a.events = make(chan transport.Event, 64)
		a.closed = false
	}
	return nil
}

func (a *fakeAdapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnects++
	if !a.closed {
		a.closed = true
		close(a.events)
	}
}

func (a *fakeAdapter) SetMicrophoneEnabled(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if enabled && a.micErr != nil {
		return a.micErr
	}
	a.micEnabled = enabled
	return nil
}

func (a *fakeAdapter) PublishData(payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.publishErr != nil {
		return a.publishErr
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	a.published = append(a.published, buf)
	return nil
}

func (a *fakeAdapter) Events() <-chan transport.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events
}

func (a *fakeAdapter) emit(ev transport.Event) {
	a.mu.Lock()
	ch := a.events
	a.mu.Unlock()
	ch <- ev
}

func (a *fakeAdapter) setMicErr(err error) {
	a.mu.Lock()
	a.micErr = err
	a.mu.Unlock()
}

func (a *fakeAdapter) publishedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.published)
}

func (a *fakeAdapter) lastPublished() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.published) == 0 {
		return nil
	}
	return a.published[len(a.published)-1]
}

func (a *fakeAdapter) disconnectCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disconnects
}
