package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/liveroom-server/internal/proto"
)

var roomPaths = map[string]string{
	"chat":         "/ws/chat/",
	"live-session": "/ws/live-session/",
	"whiteboard":   "/ws/whiteboard/",
}

func newChatCmd() *cobra.Command {
	var (
		base     string
		kind     string
		room     string
		token    string
		userID   string
		username string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal client for a room",
		Long: `Connects to a room and sends each stdin line as a chat message.

Commands:
  /ask <question>          ask the tutor (answer is private)
  /assist <message>        chat with moderator suggestions attached
  /vote <poll> <option>    answer a poll
  /draw <json>             send a whiteboard update
  /who                     request presence`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := roomURL(base, kind, room, token)
			if err != nil {
				return err
			}

			baseCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(baseCtx)
			defer cancel()

			var header http.Header
			if token != "" {
				header = http.Header{"Authorization": []string{"Bearer " + token}}
			}
			conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: header})
			if err != nil {
				return fmt.Errorf("dial: %w", err)
			}
			defer conn.Close(websocket.StatusNormalClosure, "bye")

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Connected to %s\n", target)
			fmt.Fprintln(out, "Type messages and press Enter to send. /ask, /assist, /vote, /draw, /who. Ctrl+C to exit.")

			go func() {
				defer cancel()
				readLoop(ctx, conn, out)
			}()

			writeLoop(ctx, conn, cmd.InOrStdin(), cmd.ErrOrStderr(), proto.ID(userID), username)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&base, "url", "ws://localhost:8080", "server base URL")
	f.StringVar(&kind, "kind", "chat", "room kind: chat, live-session or whiteboard")
	f.StringVar(&room, "room", "general", "room or session id")
	f.StringVar(&token, "token", "", "identity token (see `liveroom token`)")
	f.StringVar(&userID, "user-id", "", "user id claimed when connecting without a token")
	f.StringVar(&username, "username", "", "display name claimed when connecting without a token")
	return cmd
}

func roomURL(base, kind, room, token string) (string, error) {
	path, ok := roomPaths[kind]
	if !ok {
		return "", fmt.Errorf("unknown room kind %q", kind)
	}
	if room == "" {
		return "", errors.New("room is required")
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + path + url.PathEscape(room))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// parseLine turns one line of user input into a frame.
func parseLine(line string, userID proto.ID, username string) (proto.Inbound, error) {
	text := strings.TrimSpace(line)
	if text == "" {
		return proto.Inbound{}, errEmptyLine
	}
	in := proto.Inbound{UserID: userID, Username: username}

	cmd, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "/ask":
		if rest == "" {
			return proto.Inbound{}, errors.New("usage: /ask <question>")
		}
		in.Type = proto.InboundTypeQuestion
		in.Question = rest
	case "/assist":
		if rest == "" {
			return proto.Inbound{}, errors.New("usage: /assist <message>")
		}
		in.Type = proto.InboundTypeChat
		in.Content = rest
		in.AIAssist = true
	case "/vote":
		pollID, option, ok := strings.Cut(rest, " ")
		option = strings.TrimSpace(option)
		if !ok || pollID == "" || option == "" {
			return proto.Inbound{}, errors.New("usage: /vote <poll> <option>")
		}
		in.Type = proto.InboundTypePoll
		in.PollID = proto.ID(pollID)
		in.Option = proto.ID(option)
	case "/draw":
		if !json.Valid([]byte(rest)) {
			return proto.Inbound{}, errors.New("usage: /draw <json>")
		}
		in.Type = proto.InboundTypeWhiteboard
		in.Data = json.RawMessage(rest)
	case "/who":
		in.Type = proto.InboundTypePresence
	default:
		in.Type = proto.InboundTypeChat
		in.Content = text
	}
	return in, nil
}

var errEmptyLine = errors.New("empty line")

// render formats one server envelope for the terminal.
func render(raw []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Sprintf("undecodable frame: %s", raw)
	}

	switch head.Type {
	case proto.OutboundTypeChat:
		var m proto.ChatMessage
		if json.Unmarshal(raw, &m) == nil {
			line := fmt.Sprintf("[%s] %s: %s", m.RoomID, displayName(m.Username, m.UserID), m.Content)
			for _, s := range m.AISuggestions {
				line += "\n  > " + s
			}
			return line
		}
	case proto.OutboundTypeUserJoined, proto.OutboundTypeUserLeft, proto.OutboundTypePresence:
		var p proto.Presence
		if json.Unmarshal(raw, &p) == nil {
			verb := map[string]string{
				proto.OutboundTypeUserJoined: "joined",
				proto.OutboundTypeUserLeft:   "left",
				proto.OutboundTypePresence:   "is here",
			}[p.Type]
			return fmt.Sprintf("[room %s] %s %s (%d connected)", p.RoomID, displayName(p.UserData.Username, p.UserData.UserID), verb, p.TotalConnections)
		}
	case proto.OutboundTypePoll:
		var p proto.PollUpdate
		if json.Unmarshal(raw, &p) == nil {
			return fmt.Sprintf("[poll %s] %v", p.PollID, p.Results)
		}
	case proto.OutboundTypeAIResponse:
		var a proto.AIResponse
		if json.Unmarshal(raw, &a) == nil {
			return fmt.Sprintf("[tutor] %s", a.Response)
		}
	case proto.OutboundTypeWhiteboard:
		var w proto.WhiteboardUpdate
		if json.Unmarshal(raw, &w) == nil {
			return fmt.Sprintf("[whiteboard] %s: %s", w.UserID, w.Data)
		}
	case proto.OutboundTypeHistory:
		var h proto.History
		if json.Unmarshal(raw, &h) == nil {
			lines := make([]string, 0, len(h.Messages)+1)
			lines = append(lines, fmt.Sprintf("[history %s] %d messages", h.RoomID, len(h.Messages)))
			for _, m := range h.Messages {
				lines = append(lines, fmt.Sprintf("  %s: %s", displayName(m.Username, m.UserID), m.Content))
			}
			return strings.Join(lines, "\n")
		}
	case proto.OutboundTypeError:
		var e proto.Error
		if json.Unmarshal(raw, &e) == nil {
			return fmt.Sprintf("error %s: %s", e.Code, e.Message)
		}
	}
	return fmt.Sprintf("event=%s %s", head.Type, raw)
}

func displayName(username, userID string) string {
	if username != "" {
		return username
	}
	if userID != "" {
		return userID
	}
	return "anonymous"
}

func readLoop(ctx context.Context, conn *websocket.Conn, out io.Writer) {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			fmt.Fprintf(out, "read error: %v\n", err)
			return
		}
		fmt.Fprintln(out, render(raw))
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, in io.Reader, errOut io.Writer, userID proto.ID, username string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			frame, err := parseLine(line, userID, username)
			if errors.Is(err, errEmptyLine) {
				continue
			}
			if err != nil {
				fmt.Fprintln(errOut, err)
				continue
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				fmt.Fprintf(errOut, "send error: %v\n", err)
				return
			}
		}
	}
}
