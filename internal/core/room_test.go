package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomKindKeys(t *testing.T) {
	assert.Equal(t, "chat_r1", RoomKindChat.Key("r1"))
	assert.Equal(t, "session_42", RoomKindLiveSession.Key("42"))
	assert.Equal(t, "whiteboard_42", RoomKindWhiteboard.Key("42"))
	assert.True(t, RoomKindWhiteboard.Valid())
	assert.False(t, RoomKind("lobby").Valid())
}

func TestRoomKindAllows(t *testing.T) {
	tests := []struct {
		kind RoomKind
		ev   InboundEvent
		want bool
	}{
		{RoomKindChat, InboundChat{}, true},
		{RoomKindChat, InboundPresence{}, true},
		{RoomKindChat, InboundWhiteboard{}, false},
		{RoomKindChat, InboundPollResponse{}, false},
		{RoomKindChat, InboundQuestion{}, false},
		{RoomKindLiveSession, InboundChat{}, true},
		{RoomKindLiveSession, InboundWhiteboard{}, true},
		{RoomKindLiveSession, InboundPollResponse{}, true},
		{RoomKindLiveSession, InboundQuestion{}, true},
		{RoomKindWhiteboard, InboundWhiteboard{}, true},
		{RoomKindWhiteboard, InboundChat{}, false},
		{RoomKindWhiteboard, InboundPresence{}, true},
		{RoomKindLiveSession, InboundUnrecognized{}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.Allows(tt.ev), "%s allows %T", tt.kind, tt.ev)
	}
}

func TestRoomClosesWhenLastMemberLeaves(t *testing.T) {
	room := NewRoom("chat_r1", RoomKindChat)
	c := newTestClient("c", RoomKindChat, "r1")

	_, _, ok := room.AddClient(c, nil)
	require.True(t, ok)

	emptied := false
	removed, total, _ := room.RemoveClient(c, nil, func() { emptied = true })
	assert.True(t, removed)
	assert.Zero(t, total)
	assert.True(t, emptied)
	assert.Zero(t, room.Size())

	_, _, ok = room.AddClient(c, nil)
	assert.False(t, ok, "a closed room is never reused")
}

func TestRoomAddIsIdempotent(t *testing.T) {
	room := NewRoom("chat_r1", RoomKindChat)
	a := newTestClient("a", RoomKindChat, "r1")
	b := newTestClient("b", RoomKindChat, "r1")

	room.AddClient(a, nil)
	room.AddClient(b, func(total int) *Event { return presenceEvent(EventUserJoined, b, total) })
	total, _, _ := room.AddClient(b, func(total int) *Event { return presenceEvent(EventUserJoined, b, total) })

	assert.Equal(t, 2, total)
	assert.Equal(t, 1, countKind(drain(a), EventUserJoined))
	assert.ElementsMatch(t, []*Client{a, b}, room.Members())
}
