package token

import (
	"errors"
	"time"

	"github.com/livekit/protocol/auth"
)

const defaultTokenTTL = 2 * time.Hour

// Issuer mints LiveKit access tokens with room join grants.
type Issuer struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

func NewIssuer(apiKey, apiSecret string, ttl time.Duration) (*Issuer, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("api key and secret are required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Issuer{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl}, nil
}

// Mint returns a signed JWT granting the identity full participation in the
// room. Metadata rides on the token so the agent can read the session
// briefing without a separate channel.
func (i *Issuer) Mint(room, identity, name, metadata string) (string, error) {
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)
	grant.SetCanPublishData(true)

	at := auth.NewAccessToken(i.apiKey, i.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetMetadata(metadata).
		SetValidFor(i.ttl)
	return at.ToJWT()
}
