package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/liveroom-server/internal/store"
)

// RouterOptions tunes how the router talks to collaborators.
type RouterOptions struct {
	AITimeout      time.Duration
	Fallback       string
	PersistTimeout time.Duration
}

// Router dispatches parsed inbound events according to the kind of the sender's room.
type Router struct {
	hub       *Hub
	persist   Persister
	tutor     Answerer
	moderator Moderator
	opts      RouterOptions
	log       zerolog.Logger
}

// NewRouter builds a router. persist and tutor may be nil; a nil tutor answers
// every question with the fallback. When tutor also implements Moderator it
// serves chat lines sent with ai_assist.
func NewRouter(hub *Hub, persist Persister, tutor Answerer, opts RouterOptions, logger *zerolog.Logger) *Router {
	if opts.AITimeout <= 0 {
		opts.AITimeout = 10 * time.Second
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 3 * time.Second
	}
	if opts.Fallback == "" {
		opts.Fallback = "The AI tutor is unavailable right now. Please try again later."
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "router").Logger()
	}
	r := &Router{hub: hub, persist: persist, tutor: tutor, opts: opts, log: l}
	if m, ok := tutor.(Moderator); ok {
		r.moderator = m
	}
	return r
}

// Handle processes one inbound event from c. It never returns an error: bad
// frames are logged and dropped so one client cannot break the room.
//
// Events that wait on the AI collaborator run on the hub's task group so the
// caller's read loop keeps serving the connection; ctx should be the
// connection's context.
func (r *Router) Handle(ctx context.Context, c *Client, ev InboundEvent) {
	if un, ok := ev.(InboundUnrecognized); ok {
		r.log.Warn().Str("room", c.Room).Str("client_id", c.ID).Str("type", un.Type).
			Str("reason", un.Reason).Msg("dropping unrecognized frame")
		return
	}
	if !c.Kind.Allows(ev) {
		r.log.Warn().Str("room", c.Room).Str("client_id", c.ID).Str("event", fmt.Sprintf("%T", ev)).
			Msg("event not valid for room kind, dropping")
		return
	}

	switch e := ev.(type) {
	case InboundChat:
		if e.AIAssist {
			r.hub.Go(func() { r.handleChat(ctx, c, e) })
			return
		}
		r.handleChat(ctx, c, e)
	case InboundWhiteboard:
		r.handleWhiteboard(ctx, c, e)
	case InboundPollResponse:
		r.handlePollResponse(ctx, c, e)
	case InboundQuestion:
		r.hub.Go(func() { r.handleQuestion(ctx, c, e) })
	case InboundPresence:
		r.handlePresence(c, e)
	}
}

func (r *Router) handleChat(ctx context.Context, c *Client, e InboundChat) {
	if strings.TrimSpace(e.Content) == "" {
		r.log.Debug().Str("room", c.Room).Str("client_id", c.ID).Msg("empty chat message dropped")
		return
	}

	sender := Identity{UserID: c.senderID(e.UserID), Username: c.Identity().Username}
	if sender.Username == "" {
		sender.Username = e.Username
	}
	now := time.Now().UTC()

	// Store first, then broadcast; a storage failure never blocks the broadcast.
	r.persistBestEffort(ctx, "save chat message", c, func(ctx context.Context) error {
		return r.persist.SaveChatMessage(ctx, &store.ChatMessage{
			RoomID:    c.Room,
			SenderID:  sender.UserID,
			Username:  sender.Username,
			Content:   e.Content,
			CreatedAt: now,
		})
	})

	var suggestions []string
	if e.AIAssist {
		suggestions = r.suggest(ctx, c, sender.UserID, e.Content)
	}

	r.hub.Broadcast(c.Room, &Event{
		Kind:        EventChatMessage,
		Room:        c.Room,
		User:        sender,
		Content:     e.Content,
		Suggestions: suggestions,
		Timestamp:   now,
	}, nil)
}

func (r *Router) handleWhiteboard(ctx context.Context, c *Client, e InboundWhiteboard) {
	if len(e.Data) == 0 {
		r.log.Debug().Str("room", c.Room).Str("client_id", c.ID).Msg("empty whiteboard update dropped")
		return
	}

	sender := Identity{UserID: c.senderID(e.UserID), Username: c.Identity().Username}
	now := time.Now().UTC()

	// The author already has the change locally.
	r.hub.Broadcast(c.Room, &Event{
		Kind:      EventWhiteboardUpdate,
		Room:      c.Room,
		User:      sender,
		Data:      e.Data,
		Timestamp: now,
	}, c)

	if c.Kind == RoomKindWhiteboard {
		r.persistBestEffort(ctx, "save whiteboard", c, func(ctx context.Context) error {
			return r.persist.SaveWhiteboard(ctx, &store.WhiteboardSnapshot{
				RoomID:    c.Room,
				Content:   e.Data,
				UpdatedBy: sender.UserID,
				UpdatedAt: now,
			})
		})
	}
}

func (r *Router) handlePollResponse(ctx context.Context, c *Client, e InboundPollResponse) {
	respondent := c.senderID(e.UserID)

	_, err := r.hub.Vote(ctx, c, e.PollID, e.Option, respondent)
	switch {
	case errors.Is(err, ErrAlreadyVoted):
		r.log.Debug().Str("room", c.Room).Str("poll_id", e.PollID).Str("user_id", respondent).Msg("repeat vote rejected")
		_ = r.hub.Send(c, ErrorEvent(c.Room, ErrCodeAlreadyVoted, "you already voted in this poll"))
		return
	case err != nil:
		r.log.Warn().Err(err).Str("room", c.Room).Str("client_id", c.ID).Msg("poll response dropped")
		return
	}

	r.persistBestEffort(ctx, "save poll response", c, func(ctx context.Context) error {
		return r.persist.SavePollResponse(ctx, &store.PollResponse{
			RoomID:       c.Room,
			PollID:       e.PollID,
			RespondentID: respondent,
			Option:       e.Option,
			RespondedAt:  time.Now().UTC(),
		})
	})
}

func (r *Router) handleQuestion(ctx context.Context, c *Client, e InboundQuestion) {
	if strings.TrimSpace(e.Question) == "" {
		r.log.Debug().Str("room", c.Room).Str("client_id", c.ID).Msg("empty question dropped")
		return
	}

	answer := r.ask(ctx, c, e)
	_ = r.hub.Send(c, &Event{
		Kind:      EventAIResponse,
		Room:      c.Room,
		Content:   answer,
		AgentType: AgentPersonalTutor,
		Timestamp: time.Now().UTC(),
	})
}

// ask always yields an answer: any collaborator failure turns into the fallback.
func (r *Router) ask(ctx context.Context, c *Client, e InboundQuestion) string {
	if r.tutor == nil {
		return r.opts.Fallback
	}
	userID := c.senderID(e.UserID)
	log := r.log.With().Str("room", c.Room).Str("user_id", userID).Logger()

	answer, err := callAI(ctx, r.opts.AITimeout, func(ctx context.Context) (string, error) {
		return r.tutor.Ask(ctx, e.Question, userID, c.Room)
	})
	if err != nil {
		log.Warn().Err(err).Msg("tutor failed, sending fallback")
		return r.opts.Fallback
	}
	if strings.TrimSpace(answer) == "" {
		log.Warn().Msg("tutor returned empty answer, sending fallback")
		return r.opts.Fallback
	}
	return answer
}

// suggest asks the moderator about an assisted chat line. Any failure yields
// no suggestions; the line is broadcast either way.
func (r *Router) suggest(ctx context.Context, c *Client, userID, message string) []string {
	if r.moderator == nil {
		r.log.Debug().Str("room", c.Room).Msg("ai_assist requested but no moderator configured")
		return nil
	}
	suggestions, err := callAI(ctx, r.opts.AITimeout, func(ctx context.Context) ([]string, error) {
		return r.moderator.Suggest(ctx, message, userID, c.Room)
	})
	if err != nil {
		r.log.Warn().Err(err).Str("room", c.Room).Str("user_id", userID).Msg("moderator failed, broadcasting without suggestions")
		return nil
	}
	return suggestions
}

// errAIPanic reports a collaborator that panicked instead of answering.
var errAIPanic = errors.New("ai collaborator panicked")

// callAI runs fn with a deadline. It returns at the deadline even when fn
// ignores its context, and turns a panic in fn into an error.
func callAI[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("%w: %v", errAIPanic, p)}
			}
		}()
		val, err := fn(ctx)
		done <- result{val: val, err: err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (r *Router) handlePresence(c *Client, e InboundPresence) {
	if e.UserID != "" || e.Username != "" {
		if !c.SetIdentity(Identity{UserID: e.UserID, Username: e.Username}) {
			r.log.Debug().Str("client_id", c.ID).Msg("presence ignored for verified identity")
		}
	}
	_ = r.hub.Send(c, &Event{
		Kind:      EventPresence,
		Room:      c.Room,
		User:      c.Identity(),
		Total:     r.hub.RoomSize(c.Room),
		Timestamp: time.Now().UTC(),
	})
}

func (r *Router) persistBestEffort(ctx context.Context, what string, c *Client, fn func(context.Context) error) {
	if r.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.PersistTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		r.log.Warn().Err(err).Str("room", c.Room).Str("client_id", c.ID).Msg(what)
	}
}
