// Package token issues and fetches LiveKit room access tokens.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request is the body of a token issuance call.
type Request struct {
	RoomName            string `json:"room_name"`
	ParticipantName     string `json:"participant_name"`
	ParticipantIdentity string `json:"participant_identity,omitempty"`
	Briefing            string `json:"briefing,omitempty"`
}

// Response carries the credentials needed to join a room.
type Response struct {
	Token    string `json:"token"`
	URL      string `json:"url"`
	RoomName string `json:"room_name"`
}

// IssuanceError reports a non-2xx reply from the token endpoint.
type IssuanceError struct {
	Status int
	Body   string
}

func (e *IssuanceError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.Status, e.Body)
}

// Client fetches join credentials from a token issuance endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Issue requests credentials for the given room and participant.
func (c *Client) Issue(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &IssuanceError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("token endpoint returned empty token")
	}
	return &out, nil
}
