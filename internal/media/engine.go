package media

import (
	"context"

	"github.com/vovakirdan/liveroom-server/internal/core"
)

// JoinInfo contains information needed to join the audio/video room of a live session.
type JoinInfo struct {
	URL      string `json:"url"`       // WebSocket URL (e.g., ws://localhost:7880)
	Token    string `json:"token"`     // Access token for the media server
	RoomName string `json:"room_name"` // Media room name
	Identity string `json:"identity"`  // Participant identity in the room
}

// Engine abstracts the media backend used by live sessions.
type Engine interface {
	// RoomName maps a live session id to the media room name.
	RoomName(sessionID string) string

	// JoinInfo creates join credentials for a user.
	JoinInfo(ctx context.Context, sessionID string, user core.Identity) (*JoinInfo, error)
}
