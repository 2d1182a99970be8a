package proto

import (
	"bytes"
	"encoding/json"
	"time"
)

const (
	InboundTypeChat       = "chat_message"
	InboundTypeWhiteboard = "whiteboard_update"
	InboundTypePoll       = "poll_response"
	InboundTypeQuestion   = "question"
	InboundTypeAIQuestion = "ai_question"
	InboundTypePresence   = "presence"

	OutboundTypeChat       = "chat_message"
	OutboundTypeWhiteboard = "whiteboard_update"
	OutboundTypePoll       = "poll_update"
	OutboundTypeAIResponse = "ai_response"
	OutboundTypeUserJoined = "user_joined"
	OutboundTypeUserLeft   = "user_left"
	OutboundTypePresence   = "presence"
	OutboundTypeHistory    = "history"
	OutboundTypeError      = "error"
)

// Inbound is one client frame. Only the fields relevant to Type are read.
type Inbound struct {
	Type     string          `json:"type"`
	Message  string          `json:"message,omitempty"`
	Content  string          `json:"content,omitempty"`
	Question string          `json:"question,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	PollID   ID              `json:"poll_id,omitempty"`
	Option   ID              `json:"selected_option,omitempty"`
	UserID   ID              `json:"user_id,omitempty"`
	Username string          `json:"username,omitempty"`
	AIAssist bool            `json:"ai_assist,omitempty"`
}

// Text returns the textual body of a chat line or question, whichever field the client used.
func (in Inbound) Text() string {
	switch {
	case in.Content != "":
		return in.Content
	case in.Message != "":
		return in.Message
	default:
		return in.Question
	}
}

// ID accepts both JSON strings and numbers. Browser clients send numeric
// database ids and option indexes while scripted clients send strings.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// UserData describes a member in presence envelopes.
type UserData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// ChatMessage is broadcast to every member of the room, sender included.
type ChatMessage struct {
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	Content       string    `json:"content"`
	UserID        string    `json:"user_id"`
	Username      string    `json:"username,omitempty"`
	RoomID        string    `json:"room_id"`
	AISuggestions []string  `json:"ai_suggestions,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// WhiteboardUpdate relays an opaque whiteboard delta.
type WhiteboardUpdate struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	UserID    string          `json:"user_id"`
	Timestamp time.Time       `json:"timestamp"`
}

// PollUpdate carries the full tally of one poll.
type PollUpdate struct {
	Type      string         `json:"type"`
	PollID    string         `json:"poll_id"`
	Results   map[string]int `json:"results"`
	Timestamp time.Time      `json:"timestamp"`
}

// Presence is sent for user_joined, user_left and presence replies.
type Presence struct {
	Type             string    `json:"type"`
	RoomID           string    `json:"room_id"`
	UserData         UserData  `json:"user_data"`
	TotalConnections int       `json:"total_connections"`
	Timestamp        time.Time `json:"timestamp"`
}

// AIResponse is a private tutor answer.
type AIResponse struct {
	Type      string    `json:"type"`
	Response  string    `json:"response"`
	AgentType string    `json:"agent_type"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryMessage is one replayed chat line.
type HistoryMessage struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History replays recent chat to a client that just joined.
type History struct {
	Type      string           `json:"type"`
	RoomID    string           `json:"room_id"`
	Messages  []HistoryMessage `json:"messages"`
	Timestamp time.Time        `json:"timestamp"`
}

// Error describes a rejected frame.
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
