package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/liveroom-server/internal/config"
	"github.com/vovakirdan/liveroom-server/internal/core"
	"github.com/vovakirdan/liveroom-server/internal/utils"
)

const maxRoomIDLen = 128

var errDropped = errors.New("client dropped by hub")

// WSHandler upgrades HTTP connections into one room kind and bridges them to core.Client.
type WSHandler struct {
	hub    *core.Hub
	router *core.Router
	kind   core.RoomKind
	param  string
	cfg    config.Config
	log    *zerolog.Logger
}

// NewWSHandler builds a WebSocket handler for rooms of kind whose id is in the
// path parameter param.
func NewWSHandler(hub *core.Hub, router *core.Router, kind core.RoomKind, param string, cfg config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, router: router, kind: kind, param: param, cfg: cfg, log: logger}
}

// ServeHTTP serves one connection until it closes. It runs on a plain
// net/http writer: the upgrade needs to hijack a response nothing has written to.
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	roomID := r.PathValue(h.param)
	if roomID == "" || len(roomID) > maxRoomIDLen {
		writeJSON(w, stdhttp.StatusBadRequest, ErrorResponse{Error: "invalid room id", Code: core.ErrCodeBadRequest})
		return
	}
	identity, _ := identityFromContext(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), h.kind, roomID, identity, h.cfg.SendBuffer)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.hub.Connect(ctx, client)
	defer h.hub.Disconnect(client)

	errCh := make(chan error, 3)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.pingLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutines
	h.hub.Disconnect(client)
	<-errCh
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if errors.Is(err, errDropped) {
		status = websocket.StatusPolicyViolation
		reason = "dropped"
		err = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("room", client.Room).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		client.Touch()

		if !limiter.allow() {
			h.log.Debug().Str("room", client.Room).Str("client_id", client.ID).Msg("rate limited")
			_ = h.hub.Send(client, core.ErrorEvent(client.Room, core.ErrCodeRateLimited, "too many messages, slow down"))
			continue
		}

		h.router.Handle(ctx, client, inboundFromFrame(data))
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events():
			out, ok := outboundFromEvent(event)
			if !ok {
				continue
			}
			if err := h.write(ctx, conn, out); err != nil {
				h.log.Warn().Err(err).Str("room", client.Room).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
			client.Touch()
		case <-client.Done():
			return errDropped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	if h.cfg.PingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := h.writeContext(ctx)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
			client.Touch()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	writeCtx, cancel := h.writeContext(ctx)
	defer cancel()
	return wsjson.Write(writeCtx, conn, v)
}

func (h *WSHandler) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.WriteTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.cfg.WriteTimeout)
}
