package core

import (
	"encoding/json"
	"time"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventChatMessage carries a chat line to every member, sender included.
	EventChatMessage EventKind = iota
	// EventWhiteboardUpdate relays a whiteboard change to everyone but the author.
	EventWhiteboardUpdate
	// EventPollUpdate carries the full tally of a poll after a vote.
	EventPollUpdate
	// EventAIResponse is a private tutor answer to a question.
	EventAIResponse
	// EventUserJoined notifies members that someone joined.
	EventUserJoined
	// EventUserLeft notifies members that someone left.
	EventUserLeft
	// EventPresence tells one client the current member count.
	EventPresence
	// EventHistory delivers recent chat to a client upon joining a chat room.
	EventHistory
	// EventError notifies a client about a rejected frame.
	EventError
)

const (
	// AgentPersonalTutor tags answers produced by the tutor collaborator.
	AgentPersonalTutor = "personal_tutor"
	// AgentDiscussionModerator suggests follow-ups for assisted chat lines.
	AgentDiscussionModerator = "discussion_moderator"
)

// Event is sent to clients to describe what happened in a room.
type Event struct {
	Kind      EventKind
	Room      string
	User      Identity
	Content   string
	Data      json.RawMessage
	PollID    string
	Results   map[string]int
	Total     int
	AgentType string
	// Suggestions is set on assisted chat lines.
	Suggestions []string
	Messages    []Message // For EventHistory
	Error       *CoreError
	Timestamp   time.Time
}

func presenceEvent(kind EventKind, c *Client, total int) *Event {
	return &Event{
		Kind:      kind,
		Room:      c.Room,
		User:      c.Identity(),
		Total:     total,
		Timestamp: time.Now().UTC(),
	}
}

// ErrorEvent builds a private error notification.
func ErrorEvent(room, code, msg string) *Event {
	return &Event{
		Kind:      EventError,
		Room:      room,
		Error:     coreError(code, msg),
		Timestamp: time.Now().UTC(),
	}
}

// Message is a chat line as replayed in history.
type Message struct {
	ID        int64
	Room      string
	From      string
	Username  string
	Text      string
	CreatedAt time.Time
}
