package livekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/vovakirdan/liveroom-server/internal/core"
	"github.com/vovakirdan/liveroom-server/internal/media"
)

// DefaultTokenTTL is how long a join token stays valid.
const DefaultTokenTTL = time.Hour

// Engine implements media.Engine using LiveKit as the media backend.
// LiveKit creates rooms on demand when the first participant joins, so the
// engine only has to mint tokens.
type Engine struct {
	apiKey    string
	apiSecret string
	wsURL     string
	ttl       time.Duration
}

// New creates a new Engine.
func New(apiKey, apiSecret, wsURL string) *Engine {
	return &Engine{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		ttl:       DefaultTokenTTL,
	}
}

// RoomName returns the LiveKit room of a live session.
func (e *Engine) RoomName(sessionID string) string {
	return "liveroom-session-" + sessionID
}

// JoinInfo creates credentials for user to join the session's media room.
func (e *Engine) JoinInfo(_ context.Context, sessionID string, user core.Identity) (*media.JoinInfo, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if user.UserID == "" {
		return nil, errors.New("user id is required")
	}

	identity := fmt.Sprintf("user-%s", user.UserID)
	room := e.RoomName(sessionID)

	at := auth.NewAccessToken(e.apiKey, e.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(user.Username).
		SetValidFor(e.ttl)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &media.JoinInfo{
		URL:      e.wsURL,
		Token:    token,
		RoomName: room,
		Identity: identity,
	}, nil
}

var _ media.Engine = (*Engine)(nil)
