package relay

import (
	"log"
	"sync"
	"time"

	"github.com/commitkings/commitkings/internal/ai"
	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/secret"
	"github.com/commitkings/commitkings/internal/stats"
	"github.com/commitkings/commitkings/internal/types"
	"github.com/teris-io/shortid"
)

type RelayServer struct {
	log            *log.Logger
	db             database.Repository
	sealer         *secret.Sealer
	gateway        ai.Gateway
	stats          stats.StatsProvider
	sessions       map[*Session]struct{}
	sessionsLock   sync.Mutex
	joinChan       chan *ClientMessage
	registerChan   chan *Session
	deRegisterChan chan *Session
	unloadRoomChan chan string
	rmRoomChan     chan string
	rooms          map[string]*Room
	roomsLock      sync.RWMutex
	stop           chan struct{}
	done           chan struct{}
	// generateShortId is overridable in tests
	generateShortId func() (string, error)
}

func NewRelayServer(logger *log.Logger, db database.Repository, sealer *secret.Sealer, gateway ai.Gateway, sp stats.StatsProvider) (*RelayServer, error) {
	rs := &RelayServer{
		log:             logger,
		db:              db,
		sealer:          sealer,
		gateway:         gateway,
		stats:           sp,
		sessions:        make(map[*Session]struct{}),
		joinChan:        make(chan *ClientMessage),
		registerChan:    make(chan *Session),
		deRegisterChan:  make(chan *Session),
		unloadRoomChan:  make(chan string),
		rmRoomChan:      make(chan string),
		rooms:           make(map[string]*Room),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
		generateShortId: shortid.Generate,
	}

	for _, name := range []string{
		stats.LiveSessions,
		stats.LoadedRooms,
		stats.MessagesBroadcast,
		stats.MessagesPersisted,
		stats.FeedbackRequests,
		stats.FeedbackFallbacks,
	} {
		sp.RegisterMetric(name)
	}

	return rs, nil
}

func (rs *RelayServer) Run() {
	for {
		select {
		case joinMsg := <-rs.joinChan:
			room := rs.getOrCreateRoom(joinMsg.Join.RoomId)
			select {
			case room.joinChan <- joinMsg:
			default:
				rs.log.Printf("join channel full on room %q", room.externalId)
				joinMsg.session.queueMessage(ErrServiceUnavailable(joinMsg.Id))
			}
		case session := <-rs.registerChan:
			rs.log.Printf("adding connection %s for %q", session.id, session.user.Name)
			rs.addSession(session)
			rs.stats.Incr(stats.LiveSessions)
		case session := <-rs.deRegisterChan:
			rs.log.Printf("removing connection %s for %q", session.id, session.user.Name)
			rs.removeSession(session)
			rs.stats.Decr(stats.LiveSessions)
		case id := <-rs.unloadRoomChan:
			rs.exitRoom(id, false)
		case id := <-rs.rmRoomChan:
			rs.exitRoom(id, true)
		case <-rs.stop:
			rs.log.Println("shutting down rooms")
			rs.roomsLock.Lock()
			for _, r := range rs.rooms {
				close(r.exit)
				<-r.done
			}
			rs.rooms = make(map[string]*Room)
			rs.roomsLock.Unlock()

			close(rs.done)
			return
		}
	}
}

// getOrCreateRoom loads the room goroutine for the given id, creating
// it on first join. The store is not consulted here; a room id with no
// backing conversation only fails at publish time.
func (rs *RelayServer) getOrCreateRoom(id string) *Room {
	rs.roomsLock.Lock()
	defer rs.roomsLock.Unlock()

	if room, ok := rs.rooms[id]; ok {
		return room
	}

	killTimer := time.NewTimer(idleRoomTimeout)
	killTimer.Stop()

	room := &Room{
		externalId:  id,
		rs:          rs,
		joinChan:    make(chan *ClientMessage, 256),
		leaveChan:   make(chan *ClientMessage, 256),
		publishChan: make(chan *ClientMessage, 256),
		typingChan:  make(chan *ClientMessage, 256),
		relayChan:   make(chan *ServerMessage, 256),
		sessions:    make(map[*Session]struct{}),
		log:         rs.log,
		killTimer:   killTimer,
		exit:        make(chan exitReq),
		done:        make(chan struct{}),
	}

	rs.rooms[id] = room
	rs.stats.Incr(stats.LoadedRooms)
	go room.start()

	return room
}

func (rs *RelayServer) exitRoom(id string, deleted bool) {
	rs.roomsLock.Lock()
	room, ok := rs.rooms[id]
	if ok {
		delete(rs.rooms, id)
	}
	rs.roomsLock.Unlock()

	if !ok {
		return
	}

	// The room may be mid-send on unloadRoomChan after its idle timer
	// fired, and the only receiver for that channel is the run loop
	// sitting right here. Drain those requests while handing over the
	// exit; an id already gone from the map is dropped by the nested
	// call.
	for {
		select {
		case room.exit <- exitReq{deleted: deleted}:
			<-room.done
			rs.stats.Decr(stats.LoadedRooms)
			return
		case unloadId := <-rs.unloadRoomChan:
			rs.exitRoom(unloadId, false)
		}
	}
}

func (rs *RelayServer) getRoom(id string) *Room {
	rs.roomsLock.RLock()
	defer rs.roomsLock.RUnlock()
	return rs.rooms[id]
}

// Broadcast fans a persisted message out to the live members of a
// room. Callers persist first; a room with no live members is a no-op.
func (rs *RelayServer) Broadcast(roomId string, msg *types.Message) {
	room := rs.getRoom(roomId)
	if room == nil {
		return
	}

	sm := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: msg.CreatedAt,
		},
		Message: msg,
	}

	select {
	case room.relayChan <- sm:
	default:
		rs.log.Printf("relay channel full on room %q, dropping broadcast", roomId)
	}
}

// RemoveRoom unloads a room whose conversation was deleted, notifying
// any live members before teardown.
func (rs *RelayServer) RemoveRoom(roomId string) {
	select {
	case rs.rmRoomChan <- roomId:
	case <-rs.stop:
	}
}

func (rs *RelayServer) RegisterSession(s *Session) {
	select {
	case rs.registerChan <- s:
	case <-rs.stop:
	}
}

func (rs *RelayServer) addSession(s *Session) {
	rs.sessionsLock.Lock()
	defer rs.sessionsLock.Unlock()
	rs.sessions[s] = struct{}{}
}

func (rs *RelayServer) removeSession(s *Session) {
	rs.sessionsLock.Lock()
	defer rs.sessionsLock.Unlock()
	delete(rs.sessions, s)
}

func (rs *RelayServer) Shutdown() {
	rs.log.Println("received shutdown signal")

	rs.sessionsLock.Lock()
	for s := range rs.sessions {
		s.stopSession()
	}
	rs.sessionsLock.Unlock()

	close(rs.stop)

	select {
	case <-rs.done:
	case <-time.After(5 * time.Second):
		rs.log.Println("timed out waiting for rooms to exit")
	}
}
