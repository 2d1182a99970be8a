package core

import (
	"sync"

	"github.com/samber/lo"
)

// RoomKind decides which inbound events a room accepts.
type RoomKind string

const (
	RoomKindChat        RoomKind = "chat"
	RoomKindLiveSession RoomKind = "live_session"
	RoomKindWhiteboard  RoomKind = "whiteboard"
)

// Key returns the registry key for a room of this kind.
func (k RoomKind) Key(id string) string {
	switch k {
	case RoomKindChat:
		return "chat_" + id
	case RoomKindLiveSession:
		return "session_" + id
	case RoomKindWhiteboard:
		return "whiteboard_" + id
	default:
		return string(k) + "_" + id
	}
}

// Valid reports whether k is a known room kind.
func (k RoomKind) Valid() bool {
	switch k {
	case RoomKindChat, RoomKindLiveSession, RoomKindWhiteboard:
		return true
	}
	return false
}

// Allows reports whether an inbound event is valid in rooms of this kind.
func (k RoomKind) Allows(ev InboundEvent) bool {
	switch ev.(type) {
	case InboundPresence:
		return true
	case InboundChat:
		return k == RoomKindChat || k == RoomKindLiveSession
	case InboundWhiteboard:
		return k == RoomKindLiveSession || k == RoomKindWhiteboard
	case InboundPollResponse, InboundQuestion:
		return k == RoomKindLiveSession
	default:
		return false
	}
}

// Room groups clients subscribed to the same live session, chat or whiteboard.
// Every membership change, fan-out and tally update happens under mu.
type Room struct {
	Key  string
	Kind RoomKind

	mu      sync.Mutex
	clients map[*Client]struct{}
	polls   *PollTally
	// closed is set once the last member left; a closed room is never reused.
	closed bool
}

// NewRoom constructs a room with no clients.
func NewRoom(key string, kind RoomKind) *Room {
	return &Room{
		Key:     key,
		Kind:    kind,
		clients: make(map[*Client]struct{}),
		polls:   NewPollTally(),
	}
}

// AddClient inserts a client and, when announce is set, fans out the event it
// builds from the new member count to everyone else.
// ok is false when the room was closed concurrently and the caller must retry.
func (r *Room) AddClient(c *Client, announce func(total int) *Event) (total int, failed []*Client, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, nil, false
	}
	if _, exists := r.clients[c]; exists {
		return len(r.clients), nil, true
	}
	r.clients[c] = struct{}{}
	total = len(r.clients)
	if announce != nil {
		failed = r.fanout(announce(total), c)
	}
	return total, failed, true
}

// RemoveClient deletes a client. When the room becomes empty it is closed and
// onEmpty runs while the room lock is still held. Otherwise announce, if set,
// is fanned out to the remaining members.
func (r *Room) RemoveClient(c *Client, announce func(total int) *Event, onEmpty func()) (removed bool, total int, failed []*Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[c]; !exists {
		return false, len(r.clients), nil
	}
	delete(r.clients, c)
	total = len(r.clients)

	if total == 0 {
		r.closed = true
		if onEmpty != nil {
			onEmpty()
		}
		return true, 0, nil
	}
	if announce != nil {
		failed = r.fanout(announce(total), nil)
	}
	return true, total, failed
}

// Broadcast sends an event to all clients in the room except exclude and
// returns the members that could not take it.
func (r *Room) Broadcast(event *Event, exclude *Client) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fanout(event, exclude)
}

// Vote records a poll response and fans the updated tally out to every member.
func (r *Room) Vote(pollID, option, respondent string, build func(results map[string]int) *Event) (map[string]int, []*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	results, err := r.polls.Record(pollID, option, respondent)
	if err != nil {
		return nil, nil, err
	}
	return results, r.fanout(build(results), nil), nil
}

// KnowsPoll reports whether the room's tally has seen the poll.
func (r *Room) KnowsPoll(pollID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls.Known(pollID)
}

// SeedPoll restores earlier votes of a poll the room has not seen yet.
func (r *Room) SeedPoll(pollID string, votes map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls.Seed(pollID, votes)
}

// Results returns the current tally of a poll.
func (r *Room) Results(pollID string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls.Results(pollID)
}

// Members returns a point-in-time copy of the member set.
func (r *Room) Members() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.clients)
}

// Size returns the number of members.
func (r *Room) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// fanout must be called with mu held. Sends never block: a member whose queue
// is full or closed is reported back instead.
func (r *Room) fanout(event *Event, exclude *Client) []*Client {
	var failed []*Client
	for client := range r.clients {
		if client == exclude {
			continue
		}
		if err := client.deliver(event); err != nil {
			failed = append(failed, client)
		}
	}
	return failed
}
