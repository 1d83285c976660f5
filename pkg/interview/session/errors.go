package session

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned by Start when the session is neither idle
// nor retrying out of an error state.
var ErrAlreadyStarted = errors.New("session already started")

// TokenIssuanceError reports a failed credential fetch during Start.
type TokenIssuanceError struct {
	Cause error
}

func (e *TokenIssuanceError) Error() string {
	return fmt.Sprintf("token issuance failed: %v", e.Cause)
}

func (e *TokenIssuanceError) Unwrap() error { return e.Cause }

// ConnectError reports a failed transport connection during Start.
type ConnectError struct {
	Cause error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport connect failed: %v", e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// MicrophoneError reports a failed microphone acquisition during Start.
type MicrophoneError struct {
	Cause error
}

func (e *MicrophoneError) Error() string {
	return fmt.Sprintf("microphone acquisition failed: %v", e.Cause)
}

func (e *MicrophoneError) Unwrap() error { return e.Cause }

// PublishError reports a failed data-channel publish. Non-fatal: the local
// transcript has already been updated when this surfaces.
type PublishError struct {
	Cause error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("data publish failed: %v", e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }
