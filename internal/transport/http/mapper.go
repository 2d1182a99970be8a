package http

import (
	"encoding/json"

	"github.com/vovakirdan/liveroom-server/internal/core"
	"github.com/vovakirdan/liveroom-server/internal/proto"
)

// inboundFromFrame parses one client frame. Anything that is not a known,
// well-formed frame becomes core.InboundUnrecognized.
func inboundFromFrame(data []byte) core.InboundEvent {
	var in proto.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return core.InboundUnrecognized{Reason: "malformed frame: " + err.Error()}
	}

	switch in.Type {
	case proto.InboundTypeChat:
		return core.InboundChat{
			Content:  in.Text(),
			UserID:   string(in.UserID),
			Username: in.Username,
			AIAssist: in.AIAssist,
		}
	case proto.InboundTypeWhiteboard:
		return core.InboundWhiteboard{
			Data:   in.Data,
			UserID: string(in.UserID),
		}
	case proto.InboundTypePoll:
		return core.InboundPollResponse{
			PollID: string(in.PollID),
			Option: string(in.Option),
			UserID: string(in.UserID),
		}
	case proto.InboundTypeQuestion, proto.InboundTypeAIQuestion:
		return core.InboundQuestion{
			Question: in.Text(),
			UserID:   string(in.UserID),
		}
	case proto.InboundTypePresence:
		return core.InboundPresence{
			UserID:   string(in.UserID),
			Username: in.Username,
		}
	case "":
		return core.InboundUnrecognized{Reason: "missing type"}
	default:
		return core.InboundUnrecognized{Type: in.Type, Reason: "unknown type"}
	}
}

// outboundFromEvent builds the wire envelope of an event. ok is false for
// events that have no wire form.
func outboundFromEvent(event *core.Event) (out any, ok bool) {
	switch event.Kind {
	case core.EventChatMessage:
		return proto.ChatMessage{
			Type:          proto.OutboundTypeChat,
			Message:       event.Content,
			Content:       event.Content,
			UserID:        event.User.UserID,
			Username:      event.User.Username,
			RoomID:        event.Room,
			AISuggestions: event.Suggestions,
			Timestamp:     event.Timestamp,
		}, true
	case core.EventWhiteboardUpdate:
		return proto.WhiteboardUpdate{
			Type:      proto.OutboundTypeWhiteboard,
			Data:      event.Data,
			UserID:    event.User.UserID,
			Timestamp: event.Timestamp,
		}, true
	case core.EventPollUpdate:
		return proto.PollUpdate{
			Type:      proto.OutboundTypePoll,
			PollID:    event.PollID,
			Results:   event.Results,
			Timestamp: event.Timestamp,
		}, true
	case core.EventAIResponse:
		return proto.AIResponse{
			Type:      proto.OutboundTypeAIResponse,
			Response:  event.Content,
			AgentType: event.AgentType,
			Timestamp: event.Timestamp,
		}, true
	case core.EventUserJoined:
		return presenceEnvelope(proto.OutboundTypeUserJoined, event), true
	case core.EventUserLeft:
		return presenceEnvelope(proto.OutboundTypeUserLeft, event), true
	case core.EventPresence:
		return presenceEnvelope(proto.OutboundTypePresence, event), true
	case core.EventHistory:
		messages := make([]proto.HistoryMessage, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, proto.HistoryMessage{
				ID:        msg.ID,
				UserID:    msg.From,
				Username:  msg.Username,
				Content:   msg.Text,
				Timestamp: msg.CreatedAt,
			})
		}
		return proto.History{
			Type:      proto.OutboundTypeHistory,
			RoomID:    event.Room,
			Messages:  messages,
			Timestamp: event.Timestamp,
		}, true
	case core.EventError:
		if event.Error == nil {
			return proto.Error{Type: proto.OutboundTypeError, Code: "unknown", Message: "unknown error"}, true
		}
		return proto.Error{
			Type:    proto.OutboundTypeError,
			Code:    event.Error.Code,
			Message: event.Error.Message,
		}, true
	default:
		return nil, false
	}
}

func presenceEnvelope(typ string, event *core.Event) proto.Presence {
	return proto.Presence{
		Type:   typ,
		RoomID: event.Room,
		UserData: proto.UserData{
			UserID:   event.User.UserID,
			Username: event.User.Username,
		},
		TotalConnections: event.Total,
		Timestamp:        event.Timestamp,
	}
}
