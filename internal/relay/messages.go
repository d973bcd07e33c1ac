package relay

import (
	"net/http"
	"time"

	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join     *Join            `json:"join,omitempty"`
	Leave    *Leave           `json:"leave,omitempty"`
	Publish  *Publish         `json:"publish,omitempty"`
	Typing   *Typing          `json:"typing,omitempty"`
	Feedback *FeedbackRequest `json:"feedback,omitempty"`
	session  *Session
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type Publish struct {
	RoomId    string `json:"room_id"`
	Text      string `json:"text"`
	Anonymous bool   `json:"anonymous"`
}

type Typing struct {
	RoomId string `json:"room_id"`
}

type FeedbackRequest struct {
	Text    string `json:"text"`
	Persona string `json:"persona"`
}

type ServerMessage struct {
	BaseMessage
	Response *Response              `json:"response,omitempty"`
	Message  *types.Message         `json:"message,omitempty"`
	Typing   *TypingIndicator       `json:"typing,omitempty"`
	Feedback *types.PersonaFeedback `json:"feedback,omitempty"`
	Deleted  *RoomDeleted           `json:"deleted,omitempty"`
	// SkipSession excludes one session from a room broadcast.
	SkipSession *Session `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	RoomId       string `json:"room_id,omitempty"`
}

type TypingIndicator struct {
	RoomId string `json:"room_id"`
	Name   string `json:"name"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

func NoErrOK(id int, roomId string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			RoomId:       roomId,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

// RenderMessage is the single point translating a stored message into
// its public wire shape. Anonymous senders are masked to the literal
// marker and the encrypted blob is never exposed.
func RenderMessage(m database.Message) types.Message {
	msg := types.Message{
		Id:             m.ExternalId,
		ConversationId: m.ConversationExtId,
		Text:           m.Content,
		Anonymous:      m.IsAnonymous,
		IsInsight:      m.IsInsight,
		CreatedAt:      m.CreatedAt,
	}

	if m.IsAnonymous {
		msg.Author = types.AnonymousAuthor()
	} else {
		msg.Author = types.Author{
			Id:   m.SenderExtId.String,
			Name: m.SenderName.String,
		}
	}

	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
