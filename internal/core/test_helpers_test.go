package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/liveroom-server/internal/store"
)

func newTestClient(id string, kind RoomKind, roomID string) *Client {
	return NewClient(id, kind, roomID, Identity{UserID: id, Username: id}, 16)
}

func mustEvent(t *testing.T, c *Client, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("client %s: expected event kind %v not received", c.ID, kind)
			return nil
		}
	}
}

// drain returns everything currently queued for c without waiting.
func drain(c *Client) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-c.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countKind(events []*Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

var errStoreDown = errors.New("store down")

// fakePersister is an in-memory Persister that can be told to fail.
type fakePersister struct {
	mu         sync.Mutex
	fail       bool
	chats      []*store.ChatMessage
	polls      []*store.PollResponse
	joins      int
	leaves     int
	leftIDs    []int64
	whiteboard map[string]*store.WhiteboardSnapshot

	// onJoin runs inside RecordJoin, after the row id is assigned.
	onJoin func()
}

func (f *fakePersister) SaveChatMessage(_ context.Context, msg *store.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	msg.ID = int64(len(f.chats) + 1)
	f.chats = append(f.chats, msg)
	return nil
}

func (f *fakePersister) ListChatMessages(_ context.Context, roomID string, limit int) ([]*store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errStoreDown
	}
	var out []*store.ChatMessage
	for _, m := range f.chats {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakePersister) SavePollResponse(_ context.Context, resp *store.PollResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	f.polls = append(f.polls, resp)
	return nil
}

func (f *fakePersister) PollResults(ctx context.Context, roomID, pollID string) (map[string]int, error) {
	responses, err := f.ListPollResponses(ctx, roomID, pollID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	for _, r := range responses {
		out[r.Option]++
	}
	return out, nil
}

func (f *fakePersister) ListPollResponses(_ context.Context, roomID, pollID string) ([]*store.PollResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errStoreDown
	}
	var out []*store.PollResponse
	for _, r := range f.polls {
		if r.RoomID == roomID && r.PollID == pollID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePersister) RecordJoin(context.Context, string, string, time.Time) (int64, error) {
	f.mu.Lock()
	if f.fail {
		f.mu.Unlock()
		return 0, errStoreDown
	}
	f.joins++
	id := int64(f.joins)
	hook := f.onJoin
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return id, nil
}

func (f *fakePersister) RecordLeave(_ context.Context, id int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	f.leftIDs = append(f.leftIDs, id)
	return nil
}

func (f *fakePersister) ListAttendance(context.Context, string) ([]*store.Attendance, error) {
	return nil, nil
}

func (f *fakePersister) SaveWhiteboard(_ context.Context, snap *store.WhiteboardSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	if f.whiteboard == nil {
		f.whiteboard = make(map[string]*store.WhiteboardSnapshot)
	}
	f.whiteboard[snap.RoomID] = snap
	return nil
}

func (f *fakePersister) GetWhiteboard(_ context.Context, roomID string) (*store.WhiteboardSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.whiteboard[roomID], nil
}

func (f *fakePersister) closedRows() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.leftIDs...)
}

func (f *fakePersister) counts() (chats, polls, joins, leaves int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chats), len(f.polls), f.joins, f.leaves
}
