package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc"

	"github.com/vovakirdan/liveroom-server/internal/store"
)

// Options tunes lifecycle behavior of the hub.
type Options struct {
	// IdleTimeout disconnects clients with no activity for this long. Zero disables reaping.
	IdleTimeout time.Duration
	// ReapInterval is how often idle clients are looked for. Defaults to IdleTimeout/2.
	ReapInterval time.Duration
	// HistoryLimit is how many recent chat messages a client gets when joining a chat room.
	HistoryLimit int
	// PersistTimeout bounds every call to the persistence collaborator.
	PersistTimeout time.Duration
}

// Hub is the room registry and broadcast engine.
//
// Lock order: a room lock may be held while taking mu (to drop an emptied room),
// never the other way around, and no two room locks are ever held together.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	clients map[*Client]struct{}

	persist Persister
	opts    Options
	log     zerolog.Logger

	// tasks tracks asynchronous disconnects and collaborator calls so shutdown
	// and tests can wait for them.
	tasks conc.WaitGroup
}

// NewHub creates a hub. persist and logger may be nil.
func NewHub(persist Persister, opts Options, logger *zerolog.Logger) *Hub {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 3 * time.Second
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "hub").Logger()
	}
	return &Hub{
		rooms:   make(map[string]*Room),
		clients: make(map[*Client]struct{}),
		persist: persist,
		opts:    opts,
		log:     l,
	}
}

// Run reaps idle clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.opts.IdleTimeout <= 0 {
		<-ctx.Done()
		return
	}
	interval := h.opts.ReapInterval
	if interval <= 0 {
		interval = h.opts.IdleTimeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.reapIdle(now)
		}
	}
}

// Connect registers a live client into its room, announces it to the other
// members and catches it up: chat rooms replay recent history, whiteboard
// rooms the last saved snapshot.
func (h *Hub) Connect(ctx context.Context, c *Client) int {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	total := h.Join(c)
	h.recordJoin(ctx, c)
	switch c.Kind {
	case RoomKindChat:
		h.sendHistory(ctx, c)
	case RoomKindWhiteboard:
		h.sendWhiteboard(ctx, c)
	}

	h.log.Info().Str("room", c.Room).Str("client_id", c.ID).Str("user_id", c.UserID()).
		Int("connections_in_room", total).Msg("client connected")
	return total
}

// Disconnect removes a client from its room and releases it. It is safe to call
// concurrently and repeatedly; only the first call has any effect.
func (h *Hub) Disconnect(c *Client) bool {
	if !c.markClosed() {
		return false
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	_, remaining := h.Leave(c)
	c.release()
	h.recordLeave(c)

	h.log.Info().Str("room", c.Room).Str("client_id", c.ID).
		Int("connections_in_room", remaining).Msg("client disconnected")
	return true
}

// DisconnectAsync schedules Disconnect on the hub's task group.
func (h *Hub) DisconnectAsync(c *Client) {
	if c.Closed() {
		return
	}
	h.tasks.Go(func() { h.Disconnect(c) })
}

// Go runs fn on the hub's task group.
func (h *Hub) Go(fn func()) {
	h.tasks.Go(fn)
}

// Wait blocks until every scheduled disconnect and task has finished.
func (h *Hub) Wait() {
	h.tasks.Wait()
}

// Join adds the client to its room, creating the room on first join, and sends
// user_joined with the new member count to everyone else. No capacity limit applies.
func (h *Hub) Join(c *Client) int {
	announce := func(total int) *Event { return presenceEvent(EventUserJoined, c, total) }
	for {
		room := h.roomFor(c.Room, c.Kind)
		total, failed, ok := room.AddClient(c, announce)
		if !ok {
			// Lost a race with the last member leaving; the closed room is gone from the map.
			continue
		}
		h.drop(failed)
		if c.Closed() {
			// Disconnected while joining; undo so the room does not keep a dead member.
			_, total = h.Leave(c)
		}
		return total
	}
}

// Leave removes the client from its room and sends user_left to the remaining
// members. Leaving a room the client is not in is a no-op.
func (h *Hub) Leave(c *Client) (removed bool, remaining int) {
	room := h.lookup(c.Room)
	if room == nil {
		return false, 0
	}
	announce := func(total int) *Event { return presenceEvent(EventUserLeft, c, total) }
	removed, remaining, failed := room.RemoveClient(c, announce, func() {
		h.mu.Lock()
		if h.rooms[room.Key] == room {
			delete(h.rooms, room.Key)
		}
		h.mu.Unlock()
	})
	h.drop(failed)
	return removed, remaining
}

// Members returns a snapshot of the room's members.
func (h *Hub) Members(roomKey string) []*Client {
	room := h.lookup(roomKey)
	if room == nil {
		return nil
	}
	return room.Members()
}

// Broadcast delivers event to every member of the room except exclude.
// Members that cannot take the event are disconnected asynchronously.
func (h *Hub) Broadcast(roomKey string, event *Event, exclude *Client) {
	room := h.lookup(roomKey)
	if room == nil {
		return
	}
	h.drop(room.Broadcast(event, exclude))
}

// Send delivers an event privately to one client.
func (h *Hub) Send(c *Client, event *Event) error {
	err := c.deliver(event)
	if errors.Is(err, ErrQueueSaturated) {
		h.log.Warn().Str("room", c.Room).Str("client_id", c.ID).Msg("outbound queue saturated, dropping client")
		h.DisconnectAsync(c)
	}
	return err
}

// Vote records a poll response in the client's room and broadcasts the new tally.
// A poll the room has not seen yet is first restored from stored responses, so
// first-vote-wins holds across a room that emptied and was created again.
func (h *Hub) Vote(ctx context.Context, c *Client, pollID, option, respondent string) (map[string]int, error) {
	room := h.lookup(c.Room)
	if room == nil {
		return nil, ErrClientClosed
	}
	if pollID != "" && !room.KnowsPoll(pollID) {
		h.restorePoll(ctx, room, pollID)
	}
	results, failed, err := room.Vote(pollID, option, respondent, func(results map[string]int) *Event {
		return &Event{
			Kind:      EventPollUpdate,
			Room:      room.Key,
			PollID:    pollID,
			Results:   results,
			Timestamp: time.Now().UTC(),
		}
	})
	h.drop(failed)
	return results, err
}

// PollResults returns the tally of a poll: live when the room is active and
// has seen the poll, otherwise from storage.
func (h *Hub) PollResults(ctx context.Context, roomKey, pollID string) (map[string]int, error) {
	if room := h.lookup(roomKey); room != nil && room.KnowsPoll(pollID) {
		return room.Results(pollID), nil
	}
	if h.persist == nil {
		return map[string]int{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()
	return h.persist.PollResults(ctx, roomKey, pollID)
}

// RoomSize returns the number of members of a room.
func (h *Hub) RoomSize(roomKey string) int {
	room := h.lookup(roomKey)
	if room == nil {
		return 0
	}
	return room.Size()
}

// Rooms returns member counts of all active rooms.
func (h *Hub) Rooms() map[string]int {
	h.mu.Lock()
	rooms := lo.Values(h.rooms)
	h.mu.Unlock()

	out := make(map[string]int, len(rooms))
	for _, room := range rooms {
		if n := room.Size(); n > 0 {
			out[room.Key] = n
		}
	}
	return out
}

// ClientCount returns the number of live clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown disconnects every client and waits for pending disconnects.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := lo.Keys(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", len(clients)).Msg("draining clients")
	for _, c := range clients {
		h.Disconnect(c)
	}

	done := make(chan struct{})
	go func() {
		h.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) roomFor(key string, kind RoomKind) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[key]
	if !ok {
		room = NewRoom(key, kind)
		h.rooms[key] = room
	}
	return room
}

func (h *Hub) lookup(key string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[key]
}

func (h *Hub) drop(failed []*Client) {
	for _, c := range failed {
		h.log.Warn().Str("room", c.Room).Str("client_id", c.ID).Msg("delivery failed, dropping client")
		h.DisconnectAsync(c)
	}
}

func (h *Hub) reapIdle(now time.Time) {
	h.mu.Lock()
	clients := lo.Keys(h.clients)
	h.mu.Unlock()

	for _, c := range clients {
		if idle := now.Sub(c.LastActive()); idle > h.opts.IdleTimeout {
			h.log.Info().Str("room", c.Room).Str("client_id", c.ID).Dur("idle", idle).Msg("idle timeout")
			h.DisconnectAsync(c)
		}
	}
}

func (h *Hub) recordJoin(ctx context.Context, c *Client) {
	if h.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()

	id, err := h.persist.RecordJoin(ctx, c.Room, c.UserID(), time.Now())
	if err != nil {
		h.log.Warn().Err(err).Str("room", c.Room).Str("client_id", c.ID).Msg("record attendance join")
		return
	}
	c.attendanceID.Store(id)
	if c.Closed() {
		// Disconnected while the row was being opened; Disconnect saw no id.
		h.recordLeave(c)
	}
}

// recordLeave closes the attendance row at most once.
func (h *Hub) recordLeave(c *Client) {
	if h.persist == nil {
		return
	}
	id := c.attendanceID.Swap(0)
	if id == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.PersistTimeout)
	defer cancel()

	if err := h.persist.RecordLeave(ctx, id, time.Now()); err != nil {
		h.log.Warn().Err(err).Str("room", c.Room).Str("client_id", c.ID).Msg("record attendance leave")
	}
}

func (h *Hub) sendHistory(ctx context.Context, c *Client) {
	if h.persist == nil || h.opts.HistoryLimit <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()

	stored, err := h.persist.ListChatMessages(ctx, c.Room, h.opts.HistoryLimit)
	if err != nil {
		h.log.Warn().Err(err).Str("room", c.Room).Msg("load chat history")
		return
	}
	if len(stored) == 0 {
		return
	}

	messages := make([]Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, Message{
			ID:        m.ID,
			Room:      m.RoomID,
			From:      m.SenderID,
			Username:  m.Username,
			Text:      m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	_ = h.Send(c, &Event{
		Kind:      EventHistory,
		Room:      c.Room,
		Messages:  messages,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) sendWhiteboard(ctx context.Context, c *Client) {
	if h.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()

	snap, err := h.persist.GetWhiteboard(ctx, c.Room)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Warn().Err(err).Str("room", c.Room).Msg("load whiteboard snapshot")
		}
		return
	}
	if snap == nil || len(snap.Content) == 0 {
		return
	}
	_ = h.Send(c, &Event{
		Kind:      EventWhiteboardUpdate,
		Room:      c.Room,
		User:      Identity{UserID: snap.UpdatedBy},
		Data:      snap.Content,
		Timestamp: snap.UpdatedAt,
	})
}

func (h *Hub) restorePoll(ctx context.Context, room *Room, pollID string) {
	if h.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()

	responses, err := h.persist.ListPollResponses(ctx, room.Key, pollID)
	if err != nil {
		h.log.Warn().Err(err).Str("room", room.Key).Str("poll_id", pollID).Msg("restore poll responses")
		return
	}
	votes := make(map[string]string, len(responses))
	for _, r := range responses {
		if _, seen := votes[r.RespondentID]; !seen {
			votes[r.RespondentID] = r.Option
		}
	}
	room.SeedPoll(pollID, votes)
}
