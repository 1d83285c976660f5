// Package transport abstracts the real-time media room the interview runs in.
// The session controller consumes a single stream of tagged events instead of
// registering callbacks on the underlying SDK, which keeps the state machine
// testable without a live connection.
package transport

import "context"

type ConnectionState int

const (
	ConnectionDisconnected ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

type TrackKind int

const (
	TrackKindAudio TrackKind = iota
	TrackKindVideo
)

// Event is the tagged union of everything a room can tell the session.
type Event interface{ isEvent() }

type ConnectionChanged struct {
	State ConnectionState
}

// TrackSubscribed fires when a remote participant's media track becomes
// available locally.
type TrackSubscribed struct {
	Participant string
	TrackID     string
	Kind        TrackKind
}

type TrackUnsubscribed struct {
	Participant string
	TrackID     string
	Kind        TrackKind
}

// TranscriptionSegment is one streaming speech-to-text update for a
// participant. Final marks the committed version of the utterance.
type TranscriptionSegment struct {
	Participant string
	Text        string
	Final       bool
}

// DataReceived carries one raw data-channel payload from a participant.
type DataReceived struct {
	Participant string
	Payload     []byte
}

type ParticipantJoined struct {
	Identity string
	Name     string
}

type ParticipantLeft struct {
	Identity string
}

func (ConnectionChanged) isEvent()     {}
func (TrackSubscribed) isEvent()       {}
func (TrackUnsubscribed) isEvent()     {}
func (TranscriptionSegment) isEvent()  {}
func (DataReceived) isEvent()          {}
func (ParticipantJoined) isEvent()     {}
func (ParticipantLeft) isEvent()       {}

// Adapter is the session controller's view of the room. Connect and
// Disconnect may block; everything else must not.
type Adapter interface {
	// Connect joins the room at url using the supplied access token. On
	// success the adapter emits ConnectionChanged{ConnectionConnected} on
	// Events before any other room event. Connect may be called again after
	// Disconnect; the adapter re-arms a fresh event feed per attempt, so
	// callers must re-read Events after each Connect.
	Connect(ctx context.Context, url, token string) error

	// Disconnect leaves the room and releases every owned resource: the
	// microphone track, any playback sink, and the event feed (the current
	// Events channel is closed). Safe to call multiple times.
	Disconnect()

	// SetMicrophoneEnabled publishes or unpublishes the local microphone
	// track.
	SetMicrophoneEnabled(enabled bool) error

	// PublishData sends one payload to the room over the reliable channel.
	PublishData(payload []byte) error

	// Events returns the serialized room event feed. The channel is closed
	// by Disconnect.
	Events() <-chan Event
}
