package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/liveroom-server/internal/proto"
)

func newSmokeCmd() *cobra.Command {
	var (
		base    string
		room    string
		token   string
		text    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Send one chat message and wait for it to be echoed back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := roomURL(base, "chat", room, token)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSmoke(ctx, target, token, text, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&base, "url", "ws://localhost:8080", "server base URL")
	f.StringVar(&room, "room", "smoke", "chat room id")
	f.StringVar(&token, "token", "", "identity token")
	f.StringVar(&text, "text", "hello from smoke test", "message text to send")
	f.DurationVar(&timeout, "timeout", 5*time.Second, "total timeout for the run")
	return cmd
}

func runSmoke(ctx context.Context, target, token, text string, out io.Writer) error {
	var opts *websocket.DialOptions
	if token != "" {
		opts = &websocket.DialOptions{HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}}}
	}
	conn, _, err := websocket.Dial(ctx, target, opts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeChat, Content: text, Username: "smoke"}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Fprintln(out, render(raw))

		var msg proto.ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		switch msg.Type {
		case proto.OutboundTypeChat:
			if msg.Content == text {
				return nil
			}
		case proto.OutboundTypeError:
			return fmt.Errorf("server rejected message: %s", raw)
		}
	}
}
