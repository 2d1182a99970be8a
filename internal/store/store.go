package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ChatMessage is a persisted chat line in a chat room or live session.
type ChatMessage struct {
	ID        int64
	RoomID    string
	SenderID  string
	Username  string
	Content   string
	CreatedAt time.Time
}

// PollResponse is one respondent's vote on a poll.
type PollResponse struct {
	RoomID       string
	PollID       string
	RespondentID string
	Option       string
	RespondedAt  time.Time
}

// Attendance records one connection's stay in a room.
type Attendance struct {
	ID       int64
	RoomID   string
	UserID   string
	JoinedAt time.Time
	LeftAt   *time.Time
}

// WhiteboardSnapshot holds the last known whiteboard content of a room.
type WhiteboardSnapshot struct {
	RoomID    string
	Content   json.RawMessage
	UpdatedBy string
	UpdatedAt time.Time
}

// ChatStore handles chat message persistence.
type ChatStore interface {
	// SaveChatMessage persists a message and fills its ID.
	SaveChatMessage(ctx context.Context, msg *ChatMessage) error

	// ListChatMessages returns up to limit most recent messages of a room, oldest first.
	ListChatMessages(ctx context.Context, roomID string, limit int) ([]*ChatMessage, error)
}

// PollStore handles poll response persistence.
type PollStore interface {
	// SavePollResponse stores a vote. A repeated vote by the same respondent is ignored.
	SavePollResponse(ctx context.Context, resp *PollResponse) error

	// PollResults returns option counts for a poll.
	PollResults(ctx context.Context, roomID, pollID string) (map[string]int, error)

	// ListPollResponses returns every recorded vote of a poll, oldest first.
	ListPollResponses(ctx context.Context, roomID, pollID string) ([]*PollResponse, error)
}

// AttendanceStore tracks joins and leaves.
type AttendanceStore interface {
	// RecordJoin opens an attendance row and returns its ID.
	RecordJoin(ctx context.Context, roomID, userID string, at time.Time) (int64, error)

	// RecordLeave closes an attendance row.
	RecordLeave(ctx context.Context, attendanceID int64, at time.Time) error

	// ListAttendance lists attendance rows of a room.
	ListAttendance(ctx context.Context, roomID string) ([]*Attendance, error)
}

// WhiteboardStore keeps the latest whiteboard content per room.
type WhiteboardStore interface {
	SaveWhiteboard(ctx context.Context, snap *WhiteboardSnapshot) error
	// GetWhiteboard returns ErrNotFound when the room has no snapshot.
	GetWhiteboard(ctx context.Context, roomID string) (*WhiteboardSnapshot, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	ChatStore
	PollStore
	AttendanceStore
	WhiteboardStore

	// Close closes the underlying database connection.
	Close() error
}
