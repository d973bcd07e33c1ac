package relay

import (
	"database/sql"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/stats"
)

const idleRoomTimeout = 30 * time.Second

type exitReq struct {
	deleted bool
}

type Room struct {
	externalId string
	// dbId is resolved lazily on first publish; zero until then. A
	// joined room id without a backing conversation stays zero.
	dbId         int
	rs           *RelayServer
	joinChan     chan *ClientMessage
	leaveChan    chan *ClientMessage
	publishChan  chan *ClientMessage
	typingChan   chan *ClientMessage
	relayChan    chan *ServerMessage
	sessions     map[*Session]struct{}
	sessionsLock sync.RWMutex
	log          *log.Logger
	// killTimer unloads the room once its last member leaves
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.publishChan:
			r.handlePublish(msg)
		case msg := <-r.typingChan:
			r.handleTyping(msg)
		case msg := <-r.relayChan:
			r.broadcast(msg)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.externalId)
	select {
	case r.rs.unloadRoomChan <- r.externalId:
	case <-r.rs.stop:
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)
	if e.deleted {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Deleted: &RoomDeleted{RoomId: r.externalId},
		})
	}

	r.sessionsLock.Lock()
	for s := range r.sessions {
		s.delRoom(r.externalId)
	}
	r.sessions = make(map[*Session]struct{})
	r.sessionsLock.Unlock()

	close(r.done)
}

// handleJoin is idempotent: a session already in the room gets the
// same success response and the membership set is unchanged.
func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	s := join.session
	r.addSession(s)
	s.queueMessage(NoErrOK(join.Id, r.externalId))
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	s := leaveMsg.session
	r.removeSession(s)

	// a zero id marks a disconnect teardown, which gets no reply
	if leaveMsg.Id > 0 {
		s.queueMessage(NoErrOK(leaveMsg.Id, r.externalId))
	}
}

// handlePublish persists the message before any member sees it. A
// failed write is reported to the submitting session only.
func (r *Room) handlePublish(msg *ClientMessage) {
	s := msg.session

	text := strings.TrimSpace(msg.Publish.Text)
	if text == "" {
		s.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	if r.dbId == 0 {
		conv, err := r.rs.db.GetConversationByExternalId(r.externalId)
		if err != nil {
			r.log.Printf("no conversation backs room %q: %v", r.externalId, err)
			s.queueMessage(ErrRoomNotFound(msg.Id))
			return
		}
		r.dbId = conv.Id
	}

	externalId, err := r.rs.generateShortId()
	if err != nil {
		r.log.Println("generate message id:", err)
		s.queueMessage(ErrInternalError(msg.Id))
		return
	}

	params := database.CreateMessageParams{
		ExternalId:     externalId,
		ConversationId: r.dbId,
		Content:        text,
		IsAnonymous:    msg.Publish.Anonymous,
		CreatedAt:      msg.Timestamp,
	}

	if msg.Publish.Anonymous {
		sealed, err := r.rs.sealer.Seal(s.user.Id)
		if err != nil {
			r.log.Println("seal sender:", err)
			s.queueMessage(ErrInternalError(msg.Id))
			return
		}
		params.EncryptedSender = sql.NullString{String: sealed, Valid: true}
	} else {
		params.SenderId = sql.NullInt64{Int64: int64(s.dbId), Valid: true}
	}

	dbMsg, err := r.rs.db.CreateMessage(params)
	if err != nil {
		r.log.Println("error saving message:", err)
		s.queueMessage(ErrInternalError(msg.Id))
		return
	}
	r.rs.stats.Incr(stats.MessagesPersisted)

	if err := r.rs.db.UpdateConversationLastMessage(r.dbId, text, dbMsg.CreatedAt); err != nil {
		// the message itself is durable, so log and keep going
		r.log.Println("update last message:", err)
	}

	s.queueMessage(NoErrAccepted(msg.Id))

	wire := RenderMessage(dbMsg)
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Id:        msg.Id,
			Timestamp: wire.CreatedAt,
		},
		Message: &wire,
	})
}

// handleTyping relays a typing indicator to every member except the
// sender. Nothing is persisted and the sender gets no reply.
func (r *Room) handleTyping(msg *ClientMessage) {
	s := msg.session

	r.sessionsLock.RLock()
	_, member := r.sessions[s]
	r.sessionsLock.RUnlock()
	if !member {
		return
	}

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Typing: &TypingIndicator{
			RoomId: r.externalId,
			Name:   s.user.Name,
		},
		SkipSession: s,
	})
}

func (r *Room) addSession(s *Session) {
	r.sessionsLock.Lock()
	defer r.sessionsLock.Unlock()

	if _, ok := r.sessions[s]; ok {
		return
	}

	r.sessions[s] = struct{}{}
	s.addRoom(r)
}

func (r *Room) removeSession(s *Session) {
	r.sessionsLock.Lock()
	defer r.sessionsLock.Unlock()

	if _, ok := r.sessions[s]; !ok {
		return
	}

	r.log.Printf("removing session %s from room %q", s.id, r.externalId)
	delete(r.sessions, s)
	s.delRoom(r.externalId)

	if len(r.sessions) == 0 {
		r.log.Printf("no sessions in %q, starting kill timer", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// broadcast queues a message to a snapshot of the current member set.
// A member whose send queue is full is skipped, not failed.
func (r *Room) broadcast(msg *ServerMessage) {
	r.sessionsLock.RLock()
	members := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		if s == msg.SkipSession {
			continue
		}
		members = append(members, s)
	}
	r.sessionsLock.RUnlock()

	for _, s := range members {
		s.queueMessage(msg)
	}

	if msg.Message != nil {
		r.rs.stats.Incr(stats.MessagesBroadcast)
	}
}

func (r *Room) memberCount() int {
	r.sessionsLock.RLock()
	defer r.sessionsLock.RUnlock()
	return len(r.sessions)
}
