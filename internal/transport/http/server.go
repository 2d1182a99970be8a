package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/liveroom-server/internal/config"
	"github.com/vovakirdan/liveroom-server/internal/core"
	applog "github.com/vovakirdan/liveroom-server/internal/log"
	"github.com/vovakirdan/liveroom-server/internal/media"
	"github.com/vovakirdan/liveroom-server/internal/store"
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Hub    *core.Hub
	Router *core.Router
	// Verifier checks bearer tokens. Nil accepts anonymous connections only.
	Verifier core.IdentityVerifier
	// Media mints audio/video join tokens for live sessions. Nil disables the endpoint.
	Media media.Engine
	// Records serves stored attendance. Nil disables the endpoint.
	Records store.AttendanceStore
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewServer builds an HTTP server with all routes.
func NewServer(deps Deps, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler mounts the WebSocket routes on a plain mux in front of the gin
// engine. gin's response writer cannot be hijacked once the upgrade response
// has been written, so upgrades never pass through gin.
func NewHandler(deps Deps, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	log := applog.Component(logger, "http")
	wsAuth := func(h stdhttp.Handler) stdhttp.Handler {
		return RequireIdentity(deps.Verifier, cfg.JWT.Required, log, h)
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("GET /ws/chat/{room_id}", wsAuth(NewWSHandler(deps.Hub, deps.Router, core.RoomKindChat, "room_id", cfg, log)))
	mux.Handle("GET /ws/live-session/{session_id}", wsAuth(NewWSHandler(deps.Hub, deps.Router, core.RoomKindLiveSession, "session_id", cfg, log)))
	mux.Handle("GET /ws/whiteboard/{session_id}", wsAuth(NewWSHandler(deps.Hub, deps.Router, core.RoomKindWhiteboard, "session_id", cfg, log)))
	mux.Handle("/", NewEngine(deps, cfg, logger))
	return mux
}

// NewEngine builds the gin router for the REST endpoints.
func NewEngine(deps Deps, cfg config.Config, logger *zerolog.Logger) *gin.Engine {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	log := applog.Component(logger, "http")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(log))

	r.GET("/health", healthHandler)

	rooms := NewRoomHandlers(deps.Hub, deps.Records, deps.Media, log)
	authed := AuthMiddleware(deps.Verifier, true, log)
	api := r.Group("/api")
	api.GET("/rooms", rooms.ListRooms)
	api.GET("/rooms/:room_key", rooms.GetRoom)
	api.GET("/rooms/:room_key/polls/:poll_id", rooms.GetPollResults)
	api.GET("/rooms/:room_key/attendance", authed, rooms.ListAttendance)
	api.POST("/sessions/:session_id/media", authed, rooms.JoinMedia)

	return r
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
