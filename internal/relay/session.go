package relay

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/commitkings/commitkings/internal/ai"
	"github.com/commitkings/commitkings/internal/stats"
	"github.com/commitkings/commitkings/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Session is one authenticated relay connection. A user may hold any
// number of sessions; each tracks its own room memberships.
type Session struct {
	id    string
	conn  *websocket.Conn
	relay *RelayServer
	log   *log.Logger
	user  types.User
	// dbId is the account's internal store id, used when persisting
	dbId      int
	send      chan *ServerMessage
	rooms     map[string]*Room
	roomsLock sync.RWMutex
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewSession(user types.User, dbId int, conn *websocket.Conn, rs *RelayServer, l *log.Logger) *Session {
	return &Session{
		id:    uuid.NewString(),
		conn:  conn,
		relay: rs,
		log:   l,
		user:  user,
		dbId:  dbId,
		send:  make(chan *ServerMessage, 256),
		rooms: make(map[string]*Room),
		stop:  make(chan struct{}),
	}
}

func (s *Session) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				s.log.Println("failed to serialize message:", err)
				continue
			}

			if !s.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-s.stop:
			return
		case <-ticker.C:
			if !s.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Session) Read() {
	defer func() {
		s.conn.Close()
		s.cleanup()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(appData string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Println("error parsing message:", err)
			s.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.session = s
		msg.Timestamp = Now()

		switch {
		case msg.Join != nil:
			s.joinRoom(&msg)
		case msg.Leave != nil:
			s.leaveRoom(&msg)
		case msg.Publish != nil:
			s.publish(&msg)
		case msg.Typing != nil:
			s.typing(&msg)
		case msg.Feedback != nil:
			go s.handleFeedback(&msg)
		default:
			s.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

func (s *Session) joinRoom(msg *ClientMessage) {
	if strings.TrimSpace(msg.Join.RoomId) == "" {
		s.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	select {
	case s.relay.joinChan <- msg:
	default:
		s.log.Printf("joinChan full")
		s.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

// leaveRoom forwards a leave to the room. Leaving a room this session
// never joined is a no-op.
func (s *Session) leaveRoom(msg *ClientMessage) {
	if strings.TrimSpace(msg.Leave.RoomId) == "" {
		s.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	r := s.getRoom(msg.Leave.RoomId)
	if r == nil {
		return
	}

	s.forward(msg, r, r.leaveChan)
}

func (s *Session) publish(msg *ClientMessage) {
	if strings.TrimSpace(msg.Publish.RoomId) == "" {
		s.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	r := s.getRoom(msg.Publish.RoomId)
	if r == nil {
		s.queueMessage(ErrRoomNotFound(msg.Id))
		return
	}

	s.forward(msg, r, r.publishChan)
}

func (s *Session) forward(msg *ClientMessage, r *Room, ch chan *ClientMessage) {
	select {
	case ch <- msg:
	default:
		s.log.Printf("room channel full for room %q", r.externalId)
		s.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

// typing is fire-and-forget: a session typing in a room it never
// joined, or into a full channel, is silently dropped.
func (s *Session) typing(msg *ClientMessage) {
	r := s.getRoom(msg.Typing.RoomId)
	if r == nil {
		return
	}

	select {
	case r.typingChan <- msg:
	default:
	}
}

// handleFeedback answers an ai_feedback_request on this session only.
// The gateway call is raced against its deadline; on expiry the
// persona fallback is substituted and the event still succeeds.
func (s *Session) handleFeedback(msg *ClientMessage) {
	text := strings.TrimSpace(msg.Feedback.Text)
	if text == "" {
		s.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	s.relay.stats.Incr(stats.FeedbackRequests)

	feedback, fellBack := ai.GenerateWithFallback(context.Background(), s.relay.gateway, text, msg.Feedback.Persona, ai.FeedbackTimeout)
	if fellBack {
		s.relay.stats.Incr(stats.FeedbackFallbacks)
	}

	s.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{
			Id:        msg.Id,
			Timestamp: Now(),
		},
		Feedback: &types.PersonaFeedback{
			Persona:  ai.NormalizePersona(msg.Feedback.Persona),
			Feedback: feedback,
		},
	})
}

func (s *Session) queueMessage(msg *ServerMessage) bool {
	select {
	case s.send <- msg:
	default:
		s.log.Printf("send queue full for session %s, dropping message", s.id)
		return false
	}

	return true
}

func (s *Session) sendMessage(msgType int, msg []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := s.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			s.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (s *Session) stopSession() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// cleanup tears down every room membership before the session is
// deregistered, so a vanished member never lingers in a fan-out set.
func (s *Session) cleanup() {
	s.leaveAllRooms()

	select {
	case s.relay.deRegisterChan <- s:
	case <-s.relay.stop:
	}

	s.stopSession()
}

func (s *Session) leaveAllRooms() {
	s.roomsLock.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.roomsLock.RUnlock()

	for _, room := range rooms {
		msg := &ClientMessage{
			Leave:   &Leave{RoomId: room.externalId},
			session: s,
		}
		select {
		case room.leaveChan <- msg:
		case <-room.done:
		}
	}
}

func (s *Session) addRoom(r *Room) {
	s.roomsLock.Lock()
	defer s.roomsLock.Unlock()
	s.rooms[r.externalId] = r
}

func (s *Session) delRoom(id string) {
	s.roomsLock.Lock()
	defer s.roomsLock.Unlock()
	delete(s.rooms, id)
}

func (s *Session) getRoom(id string) *Room {
	s.roomsLock.RLock()
	defer s.roomsLock.RUnlock()
	return s.rooms[id]
}

func (s *Session) roomIds() []string {
	s.roomsLock.RLock()
	defer s.roomsLock.RUnlock()

	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}
