package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/liveroom-server/internal/core"
	"github.com/vovakirdan/liveroom-server/internal/media"
	"github.com/vovakirdan/liveroom-server/internal/store"
)

// RoomHandlers provides HTTP handlers for room inspection and media join endpoints.
type RoomHandlers struct {
	hub     *core.Hub
	records store.AttendanceStore
	media   media.Engine
	log     *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance. records and engine may be nil.
func NewRoomHandlers(hub *core.Hub, records store.AttendanceStore, engine media.Engine, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub:     hub,
		records: records,
		media:   engine,
		log:     logger,
	}
}

// RoomsResponse lists the active rooms.
type RoomsResponse struct {
	Rooms       map[string]int `json:"rooms"`
	Connections int            `json:"connections"`
}

// RoomResponse describes one active room.
type RoomResponse struct {
	RoomKey          string `json:"room_key"`
	TotalConnections int    `json:"total_connections"`
}

// ListRooms reports member counts of all active rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, RoomsResponse{
		Rooms:       h.hub.Rooms(),
		Connections: h.hub.ClientCount(),
	})
}

// GetRoom reports the member count of one room.
// GET /api/rooms/:room_key
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	key := c.Param("room_key")
	total := h.hub.RoomSize(key)
	if total == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}
	c.JSON(http.StatusOK, RoomResponse{RoomKey: key, TotalConnections: total})
}

// PollResultsResponse is the tally of one poll.
type PollResultsResponse struct {
	RoomKey string         `json:"room_key"`
	PollID  string         `json:"poll_id"`
	Results map[string]int `json:"results"`
}

// GetPollResults reports the tally of a poll, live or stored.
// GET /api/rooms/:room_key/polls/:poll_id
func (h *RoomHandlers) GetPollResults(c *gin.Context) {
	key, pollID := c.Param("room_key"), c.Param("poll_id")
	results, err := h.hub.PollResults(c.Request.Context(), key, pollID)
	if err != nil {
		h.log.Error().Err(err).Str("room", key).Str("poll_id", pollID).Msg("failed to load poll results")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, PollResultsResponse{RoomKey: key, PollID: pollID, Results: results})
}

// AttendanceEntry is one stay of a user in a room.
type AttendanceEntry struct {
	UserID   string     `json:"user_id"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// AttendanceResponse lists the recorded stays of a room.
type AttendanceResponse struct {
	RoomKey    string            `json:"room_key"`
	Attendance []AttendanceEntry `json:"attendance"`
}

// ListAttendance reports who joined a room and when they left.
// GET /api/rooms/:room_key/attendance
func (h *RoomHandlers) ListAttendance(c *gin.Context) {
	if h.records == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "attendance is not recorded"})
		return
	}
	key := c.Param("room_key")
	rows, err := h.records.ListAttendance(c.Request.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("room", key).Msg("failed to list attendance")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	entries := make([]AttendanceEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, AttendanceEntry{UserID: row.UserID, JoinedAt: row.JoinedAt, LeftAt: row.LeftAt})
	}
	c.JSON(http.StatusOK, AttendanceResponse{RoomKey: key, Attendance: entries})
}

// JoinMedia returns audio/video join credentials for a live session.
// POST /api/sessions/:session_id/media
func (h *RoomHandlers) JoinMedia(c *gin.Context) {
	if h.media == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "media is not enabled"})
		return
	}

	identity, ok := identityFrom(c)
	if !ok {
		h.log.Error().Msg("identity not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthorized})
		return
	}

	sessionID := c.Param("session_id")
	info, err := h.media.JoinInfo(c.Request.Context(), sessionID, identity)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Str("user_id", identity.UserID).Msg("failed to generate media join info")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("session_id", sessionID).Str("user_id", identity.UserID).Str("media_room", info.RoomName).Msg("media join issued")
	c.JSON(http.StatusOK, info)
}
