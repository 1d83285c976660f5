// Package sessions tracks the live interview controllers hosted by this
// process, so the gateway can list them, snapshot them, and drain them on
// shutdown.
package sessions

import (
	"context"
	"sort"
	"sync"

	"github.com/mbio-ai/interviewkit/pkg/interview/session"
)

// Registry indexes active controllers by session id.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

type entry struct {
	ctrl *session.Controller
	once sync.Once
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a controller under its session id and returns the matching
// unregister func. Registering the same id twice replaces (and releases) the
// older entry.
func (r *Registry) Register(id string, ctrl *session.Controller) (unregister func()) {
	if r == nil {
		return func() {}
	}

	e := &entry{ctrl: ctrl}

	r.mu.Lock()
	old := r.entries[id]
	r.entries[id] = e
	r.wg.Add(1)
	r.mu.Unlock()

	if old != nil {
		r.unregister(id, old)
	}

	return func() { r.unregister(id, e) }
}

func (r *Registry) unregister(id string, e *entry) {
	if r == nil || e == nil {
		return
	}
	e.once.Do(func() {
		r.mu.Lock()
		if r.entries[id] == e {
			delete(r.entries, id)
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

// Get returns the controller registered under id, or nil.
func (r *Registry) Get(id string) *session.Controller {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.ctrl
	}
	return nil
}

func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshots returns a point-in-time view of every live session, ordered by
// session id for stable listings.
func (r *Registry) Snapshots() []session.Snapshot {
	if r == nil {
		return nil
	}
	var ctrls []*session.Controller
	r.mu.Lock()
	for _, e := range r.entries {
		if e.ctrl == nil {
			continue
		}
		ctrls = append(ctrls, e.ctrl)
	}
	r.mu.Unlock()

	out := make([]session.Snapshot, 0, len(ctrls))
	for _, c := range ctrls {
		out = append(out, c.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// DisconnectAll tears down every live session. Used on server shutdown.
func (r *Registry) DisconnectAll() (n int) {
	if r == nil {
		return 0
	}
	var ctrls []*session.Controller
	r.mu.Lock()
	for _, e := range r.entries {
		if e.ctrl == nil {
			continue
		}
		ctrls = append(ctrls, e.ctrl)
	}
	r.mu.Unlock()

	for _, c := range ctrls {
		c.Disconnect()
		n++
	}
	return n
}

// Wait blocks until every registered session has unregistered, or the
// context expires. Reports whether the drain finished in time.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	if ctx == nil {
		r.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
