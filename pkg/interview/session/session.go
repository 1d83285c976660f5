// Package session implements the live voice-interview session controller:
// a state machine that owns one spoken conversation, folds the transport's
// event feed into an ordered transcript, and detects conversation end
// exactly once across racing signals.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbio-ai/interviewkit/pkg/interview/metrics"
	"github.com/mbio-ai/interviewkit/pkg/interview/protocol"
	"github.com/mbio-ai/interviewkit/pkg/interview/token"
	"github.com/mbio-ai/interviewkit/pkg/interview/transport"
)

// TokenSource issues join credentials for a room.
type TokenSource interface {
	Issue(ctx context.Context, req token.Request) (*token.Response, error)
}

// Config parameterizes one interview session.
type Config struct {
	ParticipantName   string
	RoomName          string   // empty generates a fresh room id per attempt
	Observer          bool     // join without publishing a microphone track
	TotalQuestions    int      // 0 leaves the answered counter unbounded
	PhaseLabels       []string // advisory phase names, in interview order
	Briefing          string   // optional structured briefing forwarded at token issuance
	AgentMarker       string   // identity substring marking the agent participant
	FarewellPhrases   []string
	FarewellDelay     time.Duration
	CompleteDelay     time.Duration
	MaxFarewellRearms int
	StartTimeout      time.Duration
}

// Result is the single completion payload delivered to OnComplete.
type Result struct {
	SessionID      string      `json:"session_id"`
	Answers        string      `json:"answers"`
	AnsweredCount  int         `json:"answered_count"`
	TotalQuestions int         `json:"total_questions"`
	Phase          string      `json:"phase,omitempty"`
	Transcript     []Utterance `json:"transcript"`
	Notes          []Note      `json:"notes,omitempty"`
}

// Dependencies carries the collaborators a Controller is built from.
type Dependencies struct {
	Tokens  TokenSource
	Adapter transport.Adapter
	Logger  *slog.Logger
	Config  Config

	// OnComplete fires exactly once per session, after the completion
	// delay or on teardown of an already-completing session.
	OnComplete func(Result)
	// OnStateChange observes every transition. Called with the session
	// lock held; must not call back into the controller.
	OnStateChange func(State)

	Now       func() time.Time
	AfterFunc func(time.Duration, func()) *time.Timer
}

// Controller is the session state machine. All event handling is serialized
// through one mutex: transport events, timer callbacks, and caller commands
// never mutate state concurrently.
type Controller struct {
	tokens  TokenSource
	adapter transport.Adapter
	logger  *slog.Logger
	cfg     Config

	onComplete func(Result)
	onState    func(State)
	now        func() time.Time
	afterFunc  func(time.Duration, func()) *time.Timer

	mu            sync.Mutex
	id            string
	state         State
	errMsg        string
	phase         string
	guard         bool // one-way completion latch
	callbackFired bool
	startedAt     time.Time
	agg           *aggregator
	detector      *farewellDetector
	completeTimer *time.Timer
	pumpDone      chan struct{}
}

func New(deps Dependencies) (*Controller, error) {
	if deps.Adapter == nil {
		return nil, fmt.Errorf("transport adapter is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.AgentMarker == "" {
		deps.Config.AgentMarker = "agent"
	}
	if len(deps.Config.FarewellPhrases) == 0 {
		deps.Config.FarewellPhrases = defaultFarewellPhrases
	}
	if deps.Config.FarewellDelay <= 0 {
		deps.Config.FarewellDelay = 4 * time.Second
	}
	if deps.Config.CompleteDelay <= 0 {
		deps.Config.CompleteDelay = 2 * time.Second
	}
	if deps.Config.MaxFarewellRearms <= 0 {
		deps.Config.MaxFarewellRearms = 5
	}
	if deps.Config.StartTimeout <= 0 {
		deps.Config.StartTimeout = 15 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.AfterFunc == nil {
		deps.AfterFunc = time.AfterFunc
	}

	c := &Controller{
		tokens:     deps.Tokens,
		adapter:    deps.Adapter,
		logger:     deps.Logger,
		cfg:        deps.Config,
		onComplete: deps.OnComplete,
		onState:    deps.OnStateChange,
		now:        deps.Now,
		afterFunc:  deps.AfterFunc,
		state:      StateIdle,
		agg:        newAggregator(deps.Config.TotalQuestions),
	}
	c.detector = newFarewellDetector(c.cfg.FarewellPhrases, c.cfg.FarewellDelay, c.cfg.MaxFarewellRearms, c.afterFunc, c.farewellConfirmed)
	if len(c.cfg.PhaseLabels) > 0 {
		c.phase = c.cfg.PhaseLabels[0]
	}
	return c, nil
}

// Start obtains join credentials, connects the transport, and enables the
// microphone. Any failure tears the session fully down and lands in
// StateError with a descriptive cause; Start may then be called again to
// retry.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateError {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.id = c.cfg.RoomName
	if c.id == "" {
		c.id = "interview-" + uuid.NewString()
	}
	c.errMsg = ""
	c.guard = false
	c.callbackFired = false
	c.startedAt = c.now()
	c.agg = newAggregator(c.cfg.TotalQuestions)
	c.detector.cancel()
	c.detector = newFarewellDetector(c.cfg.FarewellPhrases, c.cfg.FarewellDelay, c.cfg.MaxFarewellRearms, c.afterFunc, c.farewellConfirmed)
	c.setStateLocked(StateConnecting)
	id := c.id
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.StartTimeout)
	defer cancel()

	resp, err := c.tokens.Issue(ctx, token.Request{
		RoomName:        id,
		ParticipantName: c.cfg.ParticipantName,
		Briefing:        c.cfg.Briefing,
	})
	if err != nil {
		return c.failStart(&TokenIssuanceError{Cause: err}, "token")
	}

	if err := c.adapter.Connect(ctx, resp.URL, resp.Token); err != nil {
		return c.failStart(&ConnectError{Cause: err}, "connect")
	}

	if !c.cfg.Observer {
		if err := c.adapter.SetMicrophoneEnabled(true); err != nil {
			c.adapter.Disconnect()
			return c.failStart(&MicrophoneError{Cause: err}, "microphone")
		}
	}

	c.mu.Lock()
	if c.state == StateConnecting {
		c.setStateLocked(StateListening)
	}
	c.pumpDone = make(chan struct{})
	c.mu.Unlock()

	metrics.SessionsStarted.Inc()
	metrics.SessionsActive.Inc()
	go c.pump()

	c.logger.Info("session started", "session_id", id, "participant", c.cfg.ParticipantName)
	return nil
}

func (c *Controller) failStart(cause error, label string) error {
	metrics.SessionErrors.WithLabelValues(label).Inc()
	c.mu.Lock()
	c.errMsg = cause.Error()
	c.setStateLocked(StateError)
	id := c.id
	c.mu.Unlock()
	c.logger.Error("session start failed", "session_id", id, "error", cause)
	return cause
}

// pump drains the adapter's event feed into the handler until the feed
// closes on disconnect.
func (c *Controller) pump() {
	defer close(c.pumpDone)
	for ev := range c.adapter.Events() {
		c.handle(ev)
	}
}

// handle is the single synchronized entry point for transport events.
func (c *Controller) handle(ev transport.Event) {
	c.mu.Lock()

	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}

	teardown := false
	switch ev := ev.(type) {
	case transport.ConnectionChanged:
		teardown = c.handleConnectionLocked(ev.State)

	case transport.TrackSubscribed:
		if ev.Kind == transport.TrackKindAudio && c.state.active() {
			c.setStateLocked(StateSpeaking)
		}

	case transport.TrackUnsubscribed:
		if ev.Kind == transport.TrackKindAudio && c.state == StateSpeaking {
			c.setStateLocked(StateListening)
		}

	case transport.TranscriptionSegment:
		role := c.attributeRole(ev.Participant)
		c.ingestSegmentLocked(role, ev.Text, ev.Final, "")

	case transport.DataReceived:
		c.handleDataLocked(ev.Payload)

	case transport.ParticipantJoined:
		c.logger.Debug("participant joined", "session_id", c.id, "identity", ev.Identity)

	case transport.ParticipantLeft:
		c.logger.Debug("participant left", "session_id", c.id, "identity", ev.Identity)
		if c.isAgentIdentity(ev.Identity) && c.state.active() {
			// Peer departure is authoritative; skip the debounce.
			c.detector.cancel()
			c.enterCompletingLocked("agent departed")
		}
	}
	c.mu.Unlock()

	if teardown {
		c.adapter.Disconnect()
	}
}

// handleConnectionLocked reacts to connection state changes. Returns whether
// the caller must release the transport after dropping the lock.
func (c *Controller) handleConnectionLocked(state transport.ConnectionState) bool {
	switch state {
	case transport.ConnectionConnected:
		if c.state == StateConnecting {
			c.setStateLocked(StateListening)
		}
	case transport.ConnectionReconnecting:
		c.logger.Warn("transport reconnecting", "session_id", c.id)
	case transport.ConnectionDisconnected:
		if c.guard || c.state == StateIdle || c.state == StateError {
			return false
		}
		// Unexpected drop with no completion underway: reset to idle so
		// the caller can start over. The adapter still owns the mic and
		// playback sink; tell it to let go so the feed drains too.
		c.detector.cancel()
		c.stopCompleteTimerLocked()
		metrics.SessionsActive.Dec()
		c.setStateLocked(StateIdle)
		return true
	}
	return false
}

func (c *Controller) handleDataLocked(payload []byte) {
	msg, err := protocol.DecodeDataMessage(payload)
	if err != nil {
		// Malformed or unknown messages are never fatal.
		c.logger.Debug("ignoring data message", "session_id", c.id, "error", err)
		return
	}

	switch msg := msg.(type) {
	case protocol.Transcript:
		c.ingestSegmentLocked(msg.Role, msg.Text, msg.IsFinal, msg.Phase)

	case protocol.AgentState:
		if !c.state.active() {
			return
		}
		switch msg.State {
		case protocol.AgentStateListening:
			c.setStateLocked(StateListening)
		case protocol.AgentStateThinking:
			c.setStateLocked(StateThinking)
		case protocol.AgentStateSpeaking:
			c.setStateLocked(StateSpeaking)
		}

	case protocol.UserNote:
		at := c.now()
		if t, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
			at = t
		}
		c.agg.addNote(msg.Text, at)

	case protocol.PhaseHint:
		// Advisory only.
		if strings.TrimSpace(msg.Phase) != "" {
			c.phase = msg.Phase
		}
	}
}

func (c *Controller) ingestSegmentLocked(role, text string, final bool, phase string) {
	if phase == "" {
		phase = c.phase
	} else {
		c.phase = phase
	}
	c.agg.feed(role, text, final, phase, c.now())

	if role == protocol.RoleAgent && final && !c.guard {
		if c.detector.observe(text) {
			c.logger.Info("farewell phrase detected", "session_id", c.id)
		}
	}
}

// farewellConfirmed is the detector's debounce hook. Runs on the timer
// goroutine and serializes through the session lock like every other event.
func (c *Controller) farewellConfirmed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.active() {
		return
	}
	c.enterCompletingLocked("farewell confirmed")
}

func (c *Controller) enterCompletingLocked(reason string) {
	if c.guard {
		return
	}
	c.guard = true
	c.setStateLocked(StateCompleting)
	c.logger.Info("session completing", "session_id", c.id, "reason", reason)
	c.completeTimer = c.afterFunc(c.cfg.CompleteDelay, c.finishCompletion)
}

// finishCompletion lands the session in Terminated and delivers the single
// completion callback.
func (c *Controller) finishCompletion() {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.completeTimer = nil
	c.setStateLocked(StateTerminated)
	result, deliver := c.takeResultLocked()
	startedAt := c.startedAt
	c.mu.Unlock()

	c.adapter.Disconnect()

	metrics.SessionsActive.Dec()
	metrics.SessionsCompleted.Inc()
	if !startedAt.IsZero() {
		metrics.SessionDuration.Observe(c.now().Sub(startedAt).Seconds())
	}
	if deliver {
		c.onComplete(result)
	}
	c.logger.Info("session terminated", "session_id", result.SessionID, "answered", result.AnsweredCount)
}

// takeResultLocked builds the completion payload and claims the
// exactly-once delivery slot.
func (c *Controller) takeResultLocked() (Result, bool) {
	result := Result{
		SessionID:      c.id,
		Answers:        c.agg.answers(),
		AnsweredCount:  c.agg.answeredCount(),
		TotalQuestions: c.cfg.TotalQuestions,
		Phase:          c.phase,
		Transcript:     c.agg.transcript(),
		Notes:          c.agg.noteList(),
	}
	if c.callbackFired || c.onComplete == nil {
		return result, false
	}
	c.callbackFired = true
	return result, true
}

// SendNote appends a user note to the local transcript and best-effort
// forwards it to the remote peer. Blank text or a missing connection is a
// no-op. Publish failures are logged and never affect local state.
func (c *Controller) SendNote(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	c.mu.Lock()
	if !c.state.active() {
		c.mu.Unlock()
		return nil
	}
	note := protocol.NewUserNote(trimmed, c.now())
	c.agg.addNote(trimmed, c.now())
	id := c.id
	c.mu.Unlock()

	payload, err := json.Marshal(note)
	if err != nil {
		return nil
	}
	if err := c.adapter.PublishData(payload); err != nil {
		metrics.PublishFailures.Inc()
		pubErr := &PublishError{Cause: err}
		c.logger.Warn("note publish failed", "session_id", id, "error", pubErr)
	}
	return nil
}

// Complete forces completion: sets the guard and proceeds as the debounced
// path would, skipping the farewell delay. Idempotent.
func (c *Controller) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.guard || !c.state.active() {
		return
	}
	c.detector.cancel()
	c.enterCompletingLocked("caller requested")
}

// Disconnect tears the session down: cancels timers, releases the transport
// (and with it the microphone and playback sink), and returns to Idle. When
// a completion was already underway it lands in Terminated instead, and the
// pending completion callback is still delivered exactly once. Safe to call
// repeatedly.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		c.adapter.Disconnect()
		return
	}
	c.detector.cancel()
	c.stopCompleteTimerLocked()

	wasActive := c.state.active() || c.state == StateConnecting || c.state == StateCompleting
	var result Result
	deliver := false
	if c.guard {
		c.setStateLocked(StateTerminated)
		result, deliver = c.takeResultLocked()
	} else if c.state != StateIdle {
		c.setStateLocked(StateIdle)
	}
	c.mu.Unlock()

	c.adapter.Disconnect()
	if wasActive {
		metrics.SessionsActive.Dec()
	}
	if deliver {
		c.onComplete(result)
	}
}

func (c *Controller) stopCompleteTimerLocked() {
	if c.completeTimer != nil {
		c.completeTimer.Stop()
		c.completeTimer = nil
	}
}

func (c *Controller) setStateLocked(next State) {
	if c.state == next {
		return
	}
	c.logger.Debug("state transition", "session_id", c.id, "from", c.state.String(), "to", next.String())
	c.state = next
	if c.onState != nil {
		c.onState(next)
	}
}

// attributeRole maps a transport participant identity to a transcript role.
// Heuristic: an identity containing the agent marker is the agent; an
// identity matching the caller's own name prefix is the user; anything else
// is assumed to be the agent. Identity strings are user-supplied and not
// guaranteed unique, so this is an approximation, not an authentication
// check.
func (c *Controller) attributeRole(identity string) string {
	if c.isAgentIdentity(identity) {
		return protocol.RoleAgent
	}
	name := strings.ToLower(strings.TrimSpace(c.cfg.ParticipantName))
	if name != "" && strings.HasPrefix(strings.ToLower(identity), name) {
		return protocol.RoleUser
	}
	return protocol.RoleAgent
}

func (c *Controller) isAgentIdentity(identity string) bool {
	return strings.Contains(strings.ToLower(identity), strings.ToLower(c.cfg.AgentMarker))
}

// Snapshot is a point-in-time view of the session for observers.
type Snapshot struct {
	SessionID      string      `json:"session_id"`
	State          string      `json:"state"`
	Phase          string      `json:"phase,omitempty"`
	AnsweredCount  int         `json:"answered_count"`
	TotalQuestions int         `json:"total_questions"`
	AgentPreview   string      `json:"agent_preview,omitempty"`
	UserPreview    string      `json:"user_preview,omitempty"`
	Transcript     []Utterance `json:"transcript"`
	Notes          []Note      `json:"notes,omitempty"`
	Error          string      `json:"error,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		SessionID:      c.id,
		State:          c.state.String(),
		Phase:          c.phase,
		AnsweredCount:  c.agg.answeredCount(),
		TotalQuestions: c.cfg.TotalQuestions,
		AgentPreview:   c.agg.preview(protocol.RoleAgent),
		UserPreview:    c.agg.preview(protocol.RoleUser),
		Transcript:     c.agg.transcript(),
		Notes:          c.agg.noteList(),
		Error:          c.errMsg,
	}
}

// Done reports when the transport event feed has drained after teardown.
// Returns nil before Start.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pumpDone
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Controller) Phase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) AnsweredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agg.answeredCount()
}

func (c *Controller) Transcript() []Utterance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agg.transcript()
}

func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}
