package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFallback = "tutor offline"

func newTestRouter(p *fakePersister, tutor Answerer, opts RouterOptions) (*Hub, *Router) {
	var persist Persister
	if p != nil {
		persist = p
	}
	if opts.Fallback == "" {
		opts.Fallback = testFallback
	}
	hub := NewHub(persist, Options{}, nil)
	return hub, NewRouter(hub, persist, tutor, opts, nil)
}

func connectAll(t *testing.T, hub *Hub, clients ...*Client) {
	t.Helper()
	for _, c := range clients {
		hub.Connect(context.Background(), c)
	}
	for _, c := range clients {
		drain(c)
	}
}

func TestRouterChatRoomScenario(t *testing.T) {
	p := &fakePersister{}
	hub, router := newTestRouter(p, nil, RouterOptions{})
	ctx := context.Background()

	x := newTestClient("x", RoomKindChat, "r1")
	y := newTestClient("y", RoomKindChat, "r1")
	hub.Connect(ctx, x)
	hub.Connect(ctx, y)

	joined := mustEvent(t, x, EventUserJoined)
	assert.Equal(t, "y", joined.User.UserID)
	assert.Equal(t, 2, joined.Total)

	router.Handle(ctx, x, InboundChat{Content: "hi"})
	for _, c := range []*Client{x, y} {
		ev := mustEvent(t, c, EventChatMessage)
		assert.Equal(t, "hi", ev.Content)
		assert.Equal(t, "x", ev.User.UserID)
		assert.Equal(t, "chat_r1", ev.Room)
		assert.False(t, ev.Timestamp.IsZero())
		assert.Equal(t, time.UTC, ev.Timestamp.Location())
	}

	hub.Disconnect(y)
	left := mustEvent(t, x, EventUserLeft)
	assert.Equal(t, 1, left.Total)

	chats, _, _, _ := p.counts()
	assert.Equal(t, 1, chats)
}

func TestRouterChatStillBroadcastsWhenStoreFails(t *testing.T) {
	p := &fakePersister{fail: true}
	hub, router := newTestRouter(p, nil, RouterOptions{})

	x := newTestClient("x", RoomKindLiveSession, "s1")
	y := newTestClient("y", RoomKindLiveSession, "s1")
	connectAll(t, hub, x, y)

	router.Handle(context.Background(), x, InboundChat{Content: "still here"})
	assert.Equal(t, "still here", mustEvent(t, y, EventChatMessage).Content)
	assert.Equal(t, "still here", mustEvent(t, x, EventChatMessage).Content)
}

func TestRouterChatDropsEmptyContent(t *testing.T) {
	hub, router := newTestRouter(nil, nil, RouterOptions{})
	x := newTestClient("x", RoomKindChat, "r1")
	connectAll(t, hub, x)

	router.Handle(context.Background(), x, InboundChat{Content: "   "})
	assert.Empty(t, drain(x))
}

func TestRouterVerifiedIdentityWinsOverPayload(t *testing.T) {
	hub, router := newTestRouter(nil, nil, RouterOptions{})
	x := NewClient("conn-1", RoomKindChat, "r1", Identity{UserID: "42", Username: "alice", Verified: true}, 8)
	y := newTestClient("y", RoomKindChat, "r1")
	connectAll(t, hub, x, y)

	router.Handle(context.Background(), x, InboundChat{Content: "hello", UserID: "mallory", Username: "mallory"})
	ev := mustEvent(t, y, EventChatMessage)
	assert.Equal(t, "42", ev.User.UserID)
	assert.Equal(t, "alice", ev.User.Username)
}

func TestRouterWhiteboardExcludesAuthor(t *testing.T) {
	p := &fakePersister{}
	hub, router := newTestRouter(p, nil, RouterOptions{})

	a := newTestClient("a", RoomKindWhiteboard, "w1")
	b := newTestClient("b", RoomKindWhiteboard, "w1")
	connectAll(t, hub, a, b)

	data := json.RawMessage(`{"stroke":[1,2,3]}`)
	router.Handle(context.Background(), a, InboundWhiteboard{Data: data})

	ev := mustEvent(t, b, EventWhiteboardUpdate)
	assert.JSONEq(t, string(data), string(ev.Data))
	assert.Equal(t, "a", ev.User.UserID)
	assert.Empty(t, drain(a))

	snap, err := p.GetWhiteboard(context.Background(), "whiteboard_w1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "a", snap.UpdatedBy)
}

func TestRouterWhiteboardInLiveSessionIsNotSnapshotted(t *testing.T) {
	p := &fakePersister{}
	hub, router := newTestRouter(p, nil, RouterOptions{})

	a := newTestClient("a", RoomKindLiveSession, "s1")
	b := newTestClient("b", RoomKindLiveSession, "s1")
	connectAll(t, hub, a, b)

	router.Handle(context.Background(), a, InboundWhiteboard{Data: json.RawMessage(`{}`)})
	mustEvent(t, b, EventWhiteboardUpdate)

	snap, _ := p.GetWhiteboard(context.Background(), "session_s1")
	assert.Nil(t, snap)
}

func TestRouterPollAggregatesAndRejectsRepeatVotes(t *testing.T) {
	p := &fakePersister{}
	hub, router := newTestRouter(p, nil, RouterOptions{})
	ctx := context.Background()

	a := newTestClient("a", RoomKindLiveSession, "s1")
	b := newTestClient("b", RoomKindLiveSession, "s1")
	connectAll(t, hub, a, b)

	router.Handle(ctx, a, InboundPollResponse{PollID: "p1", Option: "A"})
	first := mustEvent(t, b, EventPollUpdate)
	assert.Equal(t, map[string]int{"A": 1}, first.Results)
	mustEvent(t, a, EventPollUpdate)

	router.Handle(ctx, b, InboundPollResponse{PollID: "p1", Option: "B"})
	for _, c := range []*Client{a, b} {
		ev := mustEvent(t, c, EventPollUpdate)
		assert.Equal(t, "p1", ev.PollID)
		assert.Equal(t, map[string]int{"A": 1, "B": 1}, ev.Results)
	}

	router.Handle(ctx, a, InboundPollResponse{PollID: "p1", Option: "B"})
	errEv := mustEvent(t, a, EventError)
	require.NotNil(t, errEv.Error)
	assert.Equal(t, ErrCodeAlreadyVoted, errEv.Error.Code)
	assert.Empty(t, drain(b), "a rejected vote is not broadcast")

	_, polls, _, _ := p.counts()
	assert.Equal(t, 2, polls)
}

func TestRouterPollIgnoresIncompleteResponse(t *testing.T) {
	hub, router := newTestRouter(nil, nil, RouterOptions{})
	a := newTestClient("a", RoomKindLiveSession, "s1")
	connectAll(t, hub, a)

	router.Handle(context.Background(), a, InboundPollResponse{PollID: "p1"})
	assert.Empty(t, drain(a))
}

func TestRouterQuestionAnswersPrivately(t *testing.T) {
	var gotQuestion, gotUser, gotRoom string
	tutor := AnswererFunc(func(_ context.Context, question, userID, roomID string) (string, error) {
		gotQuestion, gotUser, gotRoom = question, userID, roomID
		return "try factoring", nil
	})
	hub, router := newTestRouter(nil, tutor, RouterOptions{})

	a := newTestClient("a", RoomKindLiveSession, "s1")
	b := newTestClient("b", RoomKindLiveSession, "s1")
	connectAll(t, hub, a, b)

	router.Handle(context.Background(), a, InboundQuestion{Question: "how do I solve x^2=4?"})

	ev := mustEvent(t, a, EventAIResponse)
	assert.Equal(t, "try factoring", ev.Content)
	assert.Equal(t, AgentPersonalTutor, ev.AgentType)
	assert.Equal(t, "how do I solve x^2=4?", gotQuestion)
	assert.Equal(t, "a", gotUser)
	assert.Equal(t, "session_s1", gotRoom)
	assert.Empty(t, drain(b))
}

func TestRouterQuestionFallsBackExactlyOnce(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	cases := map[string]Answerer{
		"error": AnswererFunc(func(context.Context, string, string, string) (string, error) {
			return "", errors.New("upstream 502")
		}),
		"empty answer": AnswererFunc(func(context.Context, string, string, string) (string, error) {
			return "  ", nil
		}),
		"panic": AnswererFunc(func(context.Context, string, string, string) (string, error) {
			panic("boom")
		}),
		"timeout": AnswererFunc(func(ctx context.Context, _, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
		"ignores context": AnswererFunc(func(context.Context, string, string, string) (string, error) {
			<-release
			return "too late", nil
		}),
		"no tutor": nil,
	}

	for name, tutor := range cases {
		t.Run(name, func(t *testing.T) {
			hub, router := newTestRouter(nil, tutor, RouterOptions{AITimeout: 20 * time.Millisecond})
			a := newTestClient("a", RoomKindLiveSession, "s1")
			connectAll(t, hub, a)

			router.Handle(context.Background(), a, InboundQuestion{Question: "why?"})
			hub.Wait()

			events := drain(a)
			require.Len(t, events, 1)
			assert.Equal(t, EventAIResponse, events[0].Kind)
			assert.Equal(t, testFallback, events[0].Content)
		})
	}
}

func TestRouterQuestionDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	tutor := AnswererFunc(func(context.Context, string, string, string) (string, error) {
		<-release
		return "eventually", nil
	})
	hub, router := newTestRouter(nil, tutor, RouterOptions{AITimeout: 5 * time.Second})
	a := newTestClient("a", RoomKindLiveSession, "s1")
	connectAll(t, hub, a)

	returned := make(chan struct{})
	go func() {
		router.Handle(context.Background(), a, InboundQuestion{Question: "slow one"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Handle waited for the tutor")
	}

	// Other frames are served while the question is pending.
	router.Handle(context.Background(), a, InboundPresence{})
	mustEvent(t, a, EventPresence)

	close(release)
	assert.Equal(t, "eventually", mustEvent(t, a, EventAIResponse).Content)
	hub.Wait()
}

type fakeModerator struct {
	AnswererFunc
	suggest func(ctx context.Context, message, userID, roomID string) ([]string, error)
}

func (m fakeModerator) Suggest(ctx context.Context, message, userID, roomID string) ([]string, error) {
	return m.suggest(ctx, message, userID, roomID)
}

func TestRouterAssistedChatCarriesSuggestions(t *testing.T) {
	var gotMessage, gotRoom string
	mod := fakeModerator{suggest: func(_ context.Context, message, _, roomID string) ([]string, error) {
		gotMessage, gotRoom = message, roomID
		return []string{"ask about limits", "share an example"}, nil
	}}
	p := &fakePersister{}
	hub, router := newTestRouter(p, mod, RouterOptions{})
	x := newTestClient("x", RoomKindChat, "r1")
	y := newTestClient("y", RoomKindChat, "r1")
	connectAll(t, hub, x, y)

	router.Handle(context.Background(), x, InboundChat{Content: "what is a derivative?", AIAssist: true})
	hub.Wait()

	for _, c := range []*Client{x, y} {
		ev := mustEvent(t, c, EventChatMessage)
		assert.Equal(t, "what is a derivative?", ev.Content)
		assert.Equal(t, []string{"ask about limits", "share an example"}, ev.Suggestions)
	}
	assert.Equal(t, "what is a derivative?", gotMessage)
	assert.Equal(t, "chat_r1", gotRoom)
	chats, _, _, _ := p.counts()
	assert.Equal(t, 1, chats)

	router.Handle(context.Background(), x, InboundChat{Content: "plain"})
	assert.Nil(t, mustEvent(t, y, EventChatMessage).Suggestions)
}

func TestRouterAssistedChatBroadcastsWhenModeratorFails(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	cases := map[string]Answerer{
		"error": fakeModerator{suggest: func(context.Context, string, string, string) ([]string, error) {
			return nil, errors.New("moderator down")
		}},
		"panic": fakeModerator{suggest: func(context.Context, string, string, string) ([]string, error) {
			panic("boom")
		}},
		"ignores context": fakeModerator{suggest: func(context.Context, string, string, string) ([]string, error) {
			<-release
			return []string{"too late"}, nil
		}},
		"no moderator": AnswererFunc(func(context.Context, string, string, string) (string, error) {
			return "unused", nil
		}),
	}
	for name, tutor := range cases {
		t.Run(name, func(t *testing.T) {
			hub, router := newTestRouter(nil, tutor, RouterOptions{AITimeout: 20 * time.Millisecond})
			x := newTestClient("x", RoomKindChat, "r1")
			connectAll(t, hub, x)

			router.Handle(context.Background(), x, InboundChat{Content: "hello", AIAssist: true})
			hub.Wait()

			events := drain(x)
			require.Len(t, events, 1)
			assert.Equal(t, EventChatMessage, events[0].Kind)
			assert.Equal(t, "hello", events[0].Content)
			assert.Empty(t, events[0].Suggestions)
		})
	}
}

func TestRouterPollVotesSurviveEmptyRoom(t *testing.T) {
	p := &fakePersister{}
	hub, router := newTestRouter(p, nil, RouterOptions{})
	ctx := context.Background()

	a := newTestClient("a", RoomKindLiveSession, "s1")
	connectAll(t, hub, a)
	router.Handle(ctx, a, InboundPollResponse{PollID: "p1", Option: "A"})
	mustEvent(t, a, EventPollUpdate)
	hub.Disconnect(a)
	require.Zero(t, hub.RoomSize("session_s1"))

	again := newTestClient("a", RoomKindLiveSession, "s1")
	b := newTestClient("b", RoomKindLiveSession, "s1")
	connectAll(t, hub, again, b)

	router.Handle(ctx, again, InboundPollResponse{PollID: "p1", Option: "B"})
	errEv := mustEvent(t, again, EventError)
	assert.Equal(t, ErrCodeAlreadyVoted, errEv.Error.Code)

	router.Handle(ctx, b, InboundPollResponse{PollID: "p1", Option: "B"})
	update := mustEvent(t, b, EventPollUpdate)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, update.Results)
}

func TestRouterPresenceBindsIdentityAndReportsCount(t *testing.T) {
	hub, router := newTestRouter(nil, nil, RouterOptions{})
	anon := NewClient("conn-a", RoomKindLiveSession, "s1", Identity{}, 8)
	other := newTestClient("b", RoomKindLiveSession, "s1")
	connectAll(t, hub, anon, other)

	router.Handle(context.Background(), anon, InboundPresence{UserID: "7", Username: "neo"})
	ev := mustEvent(t, anon, EventPresence)
	assert.Equal(t, 2, ev.Total)
	assert.Equal(t, "7", ev.User.UserID)
	assert.Equal(t, "7", anon.UserID())
	assert.Empty(t, drain(other))
}

func TestRouterPresenceKeepsVerifiedIdentity(t *testing.T) {
	hub, router := newTestRouter(nil, nil, RouterOptions{})
	c := NewClient("conn", RoomKindChat, "r1", Identity{UserID: "1", Username: "root", Verified: true}, 8)
	connectAll(t, hub, c)

	router.Handle(context.Background(), c, InboundPresence{UserID: "2", Username: "imposter"})
	ev := mustEvent(t, c, EventPresence)
	assert.Equal(t, "1", ev.User.UserID)
	assert.True(t, c.Identity().Verified)
}

func TestRouterDropsUnrecognizedAndDisallowedEvents(t *testing.T) {
	tutor := AnswererFunc(func(context.Context, string, string, string) (string, error) {
		t.Fatal("tutor must not be called outside live sessions")
		return "", nil
	})
	hub, router := newTestRouter(nil, tutor, RouterOptions{})
	ctx := context.Background()

	chat := newTestClient("c", RoomKindChat, "r1")
	board := newTestClient("w", RoomKindWhiteboard, "w1")
	peer := newTestClient("p", RoomKindChat, "r1")
	connectAll(t, hub, chat, board, peer)

	router.Handle(ctx, chat, InboundUnrecognized{Type: "teleport"})
	router.Handle(ctx, chat, InboundPollResponse{PollID: "p1", Option: "A"})
	router.Handle(ctx, chat, InboundWhiteboard{Data: json.RawMessage(`{}`)})
	router.Handle(ctx, board, InboundQuestion{Question: "hello?"})
	router.Handle(ctx, board, InboundChat{Content: "hi"})

	for _, c := range []*Client{chat, board, peer} {
		assert.Empty(t, drain(c), "client %s", c.ID)
	}
	assert.Equal(t, 2, hub.RoomSize("chat_r1"), "bad frames never disconnect")
}
