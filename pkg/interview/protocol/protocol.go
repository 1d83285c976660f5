// Package protocol defines the JSON messages exchanged with the remote peer
// over the room's reliable data channel.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	RoleAgent = "agent"
	RoleUser  = "user"
)

// Message type discriminators.
const (
	TypeTranscript = "transcript"
	TypeUserNote   = "user_note"
	TypeAgentState = "agent_state"
)

// Agent states carried by AgentState messages.
const (
	AgentStateListening = "listening"
	AgentStateThinking  = "thinking"
	AgentStateSpeaking  = "speaking"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badMessage(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_message", Message: message, Param: param}
}

// Transcript is the data-channel fallback for a transcription segment. The
// agent publishes these so clients without native transcription events still
// see captions.
type Transcript struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final,omitempty"`
	Phase   string `json:"phase,omitempty"`
}

// UserNote is a typed note authored by the interviewee mid-session.
type UserNote struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// AgentState announces the agent's conversational state
// (listening/thinking/speaking).
type AgentState struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// PhaseHint is an advisory progress marker. It carries no "type" field on the
// wire, only a bare phase label.
type PhaseHint struct {
	Phase string `json:"phase"`
}

// NewUserNote stamps a note with an RFC 3339 timestamp.
func NewUserNote(text string, at time.Time) UserNote {
	return UserNote{Type: TypeUserNote, Text: text, Timestamp: at.UTC().Format(time.RFC3339)}
}

// DecodeDataMessage parses one inbound data-channel payload into its typed
// form. Callers treat any returned error as "ignore this message": malformed
// or unrecognized payloads are never fatal to a session.
func DecodeDataMessage(data []byte) (any, error) {
	var envelope struct {
		Type  string `json:"type"`
		Phase string `json:"phase"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badMessage("invalid json payload", "")
	}

	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		if strings.TrimSpace(envelope.Phase) == "" {
			return nil, badMessage("missing type", "type")
		}
		return PhaseHint{Phase: strings.TrimSpace(envelope.Phase)}, nil
	}

	switch typ {
	case TypeTranscript:
		var msg Transcript
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badMessage("invalid transcript payload", "")
		}
		role := strings.TrimSpace(msg.Role)
		if role != RoleAgent && role != RoleUser {
			return nil, badMessage("transcript.role must be agent or user", "role")
		}
		msg.Role = role
		return msg, nil
	case TypeUserNote:
		var msg UserNote
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badMessage("invalid user_note payload", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badMessage("user_note.text is required", "text")
		}
		return msg, nil
	case TypeAgentState:
		var msg AgentState
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badMessage("invalid agent_state payload", "")
		}
		switch strings.TrimSpace(msg.State) {
		case AgentStateListening, AgentStateThinking, AgentStateSpeaking:
		default:
			return nil, badMessage("agent_state.state is not a known state", "state")
		}
		msg.State = strings.TrimSpace(msg.State)
		return msg, nil
	default:
		return nil, badMessage(fmt.Sprintf("unknown message type %q", typ), "type")
	}
}
