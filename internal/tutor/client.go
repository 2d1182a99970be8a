// Package tutor calls the AI tutoring service that answers questions asked
// during live sessions.
package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/liveroom-server/internal/core"
)

// AgentType is the agent asked for every question.
const AgentType = core.AgentPersonalTutor

// maxResponseBytes bounds how much of the service reply is read.
const maxResponseBytes = 1 << 20

// ErrEmptyAnswer is returned when the service replied without an answer.
var ErrEmptyAnswer = errors.New("tutor returned no answer")

type askRequest struct {
	AgentType string         `json:"agent_type"`
	Message   string         `json:"message"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context,omitempty"`
}

type askResponse struct {
	Response    string   `json:"response"`
	Answer      string   `json:"answer"`
	AgentType   string   `json:"agent_type"`
	Suggestions []string `json:"suggestions"`
}

// Client posts questions to the tutor service over HTTP. It implements
// core.Answerer and core.Moderator.
type Client struct {
	url  string
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a client for the endpoint at url. A zero timeout leaves
// the deadline to the caller's context.
func NewClient(url string, timeout time.Duration, logger *zerolog.Logger) *Client {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "tutor").Logger()
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
		log:  l,
	}
}

// Ask sends a question and returns the answer text.
func (c *Client) Ask(ctx context.Context, question, userID, roomID string) (string, error) {
	out, err := c.call(ctx, AgentType, question, userID, roomID)
	if err != nil {
		return "", err
	}

	answer := out.Response
	if answer == "" {
		answer = out.Answer
	}
	if strings.TrimSpace(answer) == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

// Suggest asks the discussion moderator for follow-ups to a chat line.
// Blank suggestions are dropped; an empty result is not an error.
func (c *Client) Suggest(ctx context.Context, message, userID, roomID string) ([]string, error) {
	out, err := c.call(ctx, core.AgentDiscussionModerator, message, userID, roomID)
	if err != nil {
		return nil, err
	}
	return lo.Filter(out.Suggestions, func(s string, _ int) bool {
		return strings.TrimSpace(s) != ""
	}), nil
}

func (c *Client) call(ctx context.Context, agent, message, userID, roomID string) (*askResponse, error) {
	body, err := json.Marshal(askRequest{
		AgentType: agent,
		Message:   message,
		UserID:    userID,
		SessionID: sessionID(roomID),
		Context:   map[string]any{"room_id": roomID},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", agent, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", agent, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s status %d", agent, resp.StatusCode)
	}

	var out askResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s reply: %w", agent, err)
	}

	c.log.Debug().Str("agent", agent).Str("room", roomID).Str("user_id", userID).Dur("took", time.Since(start)).Msg("agent replied")
	return &out, nil
}

// sessionID strips the room kind prefix the service does not know about.
func sessionID(roomID string) string {
	for _, prefix := range []string{"session_", "chat_", "whiteboard_"} {
		if rest, ok := strings.CutPrefix(roomID, prefix); ok {
			return rest
		}
	}
	return roomID
}

var (
	_ core.Answerer  = (*Client)(nil)
	_ core.Moderator = (*Client)(nil)
)
