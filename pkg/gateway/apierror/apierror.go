// Package apierror maps internal errors onto the gateway's JSON error
// envelope and HTTP status codes.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mbio-ai/interviewkit/pkg/interview/protocol"
	"github.com/mbio-ai/interviewkit/pkg/interview/session"
	"github.com/mbio-ai/interviewkit/pkg/interview/store"
	"github.com/mbio-ai/interviewkit/pkg/interview/token"
)

type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrUpstream       ErrorType = "upstream_error"
	ErrAPI            ErrorType = "api_error"
)

type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

func (e *Error) Error() string { return e.Message }

type Envelope struct {
	Error *Error `json:"error"`
}

// FromError translates err into an envelope error and HTTP status.
func FromError(err error, requestID string) (*Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrAPI, Message: "request timeout", RequestID: requestID}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Type: ErrAPI, Message: "request cancelled", RequestID: requestID}, http.StatusRequestTimeout
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr != nil {
		out := *apiErr
		out.RequestID = requestID
		return &out, statusFromType(out.Type)
	}

	if errors.Is(err, store.ErrNotFound) {
		return &Error{Type: ErrNotFound, Message: "session not found", RequestID: requestID}, http.StatusNotFound
	}
	if errors.Is(err, session.ErrAlreadyStarted) {
		return &Error{Type: ErrInvalidRequest, Message: "session already started", RequestID: requestID}, http.StatusConflict
	}

	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) && decodeErr != nil {
		return &Error{
			Type:      ErrInvalidRequest,
			Message:   decodeErr.Message,
			Param:     decodeErr.Param,
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	var issuanceErr *token.IssuanceError
	if errors.As(err, &issuanceErr) {
		return &Error{Type: ErrUpstream, Message: issuanceErr.Error(), RequestID: requestID}, http.StatusBadGateway
	}

	var tokenErr *session.TokenIssuanceError
	var connectErr *session.ConnectError
	var micErr *session.MicrophoneError
	if errors.As(err, &tokenErr) || errors.As(err, &connectErr) || errors.As(err, &micErr) {
		return &Error{Type: ErrUpstream, Message: err.Error(), RequestID: requestID}, http.StatusBadGateway
	}

	return &Error{Type: ErrAPI, Message: "internal error", RequestID: requestID}, http.StatusInternalServerError
}

func statusFromType(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write emits the JSON error envelope for err.
func Write(w http.ResponseWriter, err error, requestID string) {
	apiErr, status := FromError(err, requestID)
	WriteJSON(w, status, apiErr)
}

func WriteJSON(w http.ResponseWriter, status int, apiErr *Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: apiErr})
}
