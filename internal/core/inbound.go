package core

import "encoding/json"

// InboundEvent is a parsed client frame. The set of implementations is closed:
// the wire codec produces exactly one of the Inbound* types below.
type InboundEvent interface {
	inbound()
}

// InboundChat is a chat line. AIAssist asks the discussion moderator for
// suggestions that travel with the broadcast.
type InboundChat struct {
	Content  string
	UserID   string
	Username string
	AIAssist bool
}

// InboundWhiteboard is an opaque whiteboard delta.
type InboundWhiteboard struct {
	Data   json.RawMessage
	UserID string
}

// InboundPollResponse is a vote on a poll.
type InboundPollResponse struct {
	PollID string
	Option string
	UserID string
}

// InboundQuestion asks the tutor for help.
type InboundQuestion struct {
	Question string
	UserID   string
}

// InboundPresence binds identity metadata and asks for the member count.
type InboundPresence struct {
	UserID   string
	Username string
}

// InboundUnrecognized is any frame with an unknown or missing type tag.
type InboundUnrecognized struct {
	Type   string
	Reason string
}

func (InboundChat) inbound()         {}
func (InboundWhiteboard) inbound()   {}
func (InboundPollResponse) inbound() {}
func (InboundQuestion) inbound()     {}
func (InboundPresence) inbound()     {}
func (InboundUnrecognized) inbound() {}
