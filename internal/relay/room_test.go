package relay

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/testutil"
	"github.com/commitkings/commitkings/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestRoom(t *testing.T, rs *RelayServer, externalId string) *Room {
	room := &Room{
		externalId:  externalId,
		rs:          rs,
		joinChan:    make(chan *ClientMessage, 256),
		leaveChan:   make(chan *ClientMessage, 256),
		publishChan: make(chan *ClientMessage, 256),
		typingChan:  make(chan *ClientMessage, 256),
		relayChan:   make(chan *ServerMessage, 256),
		sessions:    make(map[*Session]struct{}),
		log:         testutil.TestLogger(t),
		killTimer:   time.NewTimer(idleRoomTimeout),
		exit:        make(chan exitReq),
		done:        make(chan struct{}),
	}

	room.killTimer.Stop()
	return room
}

func newTestSession(t *testing.T, id string, user types.User, dbId int) *Session {
	return &Session{
		id:    id,
		user:  user,
		dbId:  dbId,
		send:  make(chan *ServerMessage, 256),
		rooms: make(map[string]*Room),
		log:   testutil.TestLogger(t),
		stop:  make(chan struct{}),
	}
}

func Test_handleJoin(t *testing.T) {
	t.Run("adds the session and responds ok", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRepository{})
		room := newTestRoom(t, rs, "room-1")
		s := newTestSession(t, "session-1", types.User{Id: "u1", Name: "testuser"}, 1)

		room.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Join:        &Join{RoomId: room.externalId},
			session:     s,
		})

		assert.Contains(t, room.sessions, s, "expected session to be added to room")
		assert.Contains(t, s.rooms, room.externalId, "expected room to be added to session")

		select {
		case msg := <-s.send:
			assert.NotNil(t, msg.Response, "expected a response message")
			assert.Equal(t, 1, msg.Id, "expected response id to match request id")
			assert.Equal(t, http.StatusOK, msg.Response.ResponseCode, "expected response code 200")
			assert.Equal(t, room.externalId, msg.Response.RoomId, "expected response to carry the room id")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: session did not receive join response")
		}
	})

	t.Run("repeated join is idempotent", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRepository{})
		room := newTestRoom(t, rs, "room-1")
		s := newTestSession(t, "session-1", types.User{Id: "u1", Name: "testuser"}, 1)

		for i := 1; i <= 2; i++ {
			room.handleJoin(&ClientMessage{
				BaseMessage: BaseMessage{Id: i, Timestamp: Now()},
				Join:        &Join{RoomId: room.externalId},
				session:     s,
			})
		}

		assert.Equal(t, 1, room.memberCount(), "expected a single membership after repeated joins")
		assert.Len(t, s.send, 2, "expected both joins to be answered")

		for i := 1; i <= 2; i++ {
			msg := <-s.send
			assert.Equal(t, i, msg.Id, "expected response id to match request id")
			assert.Equal(t, http.StatusOK, msg.Response.ResponseCode, "expected response code 200 on join %d", i)
		}
	})

	t.Run("join stops the kill timer", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRepository{})
		room := newTestRoom(t, rs, "room-1")
		room.killTimer.Reset(idleRoomTimeout)

		s := newTestSession(t, "session-1", types.User{Id: "u1", Name: "testuser"}, 1)
		room.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Join:        &Join{RoomId: room.externalId},
			session:     s,
		})

		assert.False(t, room.killTimer.Stop(), "expected kill timer to already be stopped after join")
	})
}

func Test_handleLeave(t *testing.T) {
	t.Run("removes the session and responds ok", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRepository{})
		room := newTestRoom(t, rs, "room-1")
		s := newTestSession(t, "session-1", types.User{Id: "u1", Name: "testuser"}, 1)
		room.addSession(s)

		room.handleLeave(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Leave:       &Leave{RoomId: room.externalId},
			session:     s,
		})

		assert.NotContains(t, room.sessions, s, "expected session to be removed from room")
		assert.NotContains(t, s.rooms, room.externalId, "expected room to be removed from session")
		assert.True(t, room.killTimer.Stop(), "expected kill timer to be started after last leave")

		select {
		case msg := <-s.send:
			assert.NotNil(t, msg.Response, "expected a response message")
			assert.Equal(t, http.StatusOK, msg.Response.ResponseCode, "expected response code 200")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: session did not receive leave response")
		}
	})

	t.Run("leave does not touch other members", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRepository{})
		room := newTestRoom(t, rs, "room-1")
		s1 := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
		s2 := newTestSession(t, "session-2", types.User{Id: "u2", Name: "user2"}, 2)
		room.addSession(s1)
		room.addSession(s2)

		room.handleLeave(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Leave:       &Leave{RoomId: room.externalId},
			session:     s1,
		})

		assert.Equal(t, 1, room.memberCount(), "expected one remaining member")
		assert.Contains(t, room.sessions, s2, "expected other session to remain in room")
		assert.False(t, room.killTimer.Stop(), "expected kill timer to stay stopped with members left")
	})

	t.Run("disconnect teardown gets no reply", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRepository{})
		room := newTestRoom(t, rs, "room-1")
		s := newTestSession(t, "session-1", types.User{Id: "u1", Name: "testuser"}, 1)
		room.addSession(s)

		room.handleLeave(&ClientMessage{
			Leave:   &Leave{RoomId: room.externalId},
			session: s,
		})

		assert.NotContains(t, room.sessions, s, "expected session to be removed from room")
		assert.Len(t, s.send, 0, "expected no reply for a teardown leave")
	})
}

func Test_handlePublish(t *testing.T) {
	conv := database.Conversation{Id: 7, ExternalId: "room-1", Name: "team", Type: "team"}

	t.Run("persists before broadcasting to all members", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)

		rs := newTestRelayServer(t, db)
		rs.generateShortId = func() (string, error) { return "msg-ext-1", nil }

		room := newTestRoom(t, rs, "room-1")
		s1 := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
		s2 := newTestSession(t, "session-2", types.User{Id: "u2", Name: "user2"}, 2)
		room.addSession(s1)
		room.addSession(s2)

		now := Now()
		db.On("GetConversationByExternalId", "room-1").Return(conv, nil).Once()
		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.ExternalId == "msg-ext-1" &&
				p.ConversationId == conv.Id &&
				p.SenderId.Valid && p.SenderId.Int64 == 1 &&
				!p.EncryptedSender.Valid &&
				p.Content == "Hello, team!" &&
				!p.IsAnonymous
		})).Return(database.Message{
			Id:                1,
			ExternalId:        "msg-ext-1",
			ConversationId:    conv.Id,
			ConversationExtId: conv.ExternalId,
			SenderId:          toNullInt64(1),
			Content:           "Hello, team!",
			CreatedAt:         now,
			SenderExtId:       toNullString("u1"),
			SenderName:        toNullString("user1"),
		}, nil).Once()
		db.On("UpdateConversationLastMessage", conv.Id, "Hello, team!", now).Return(nil).Once()

		room.handlePublish(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: now},
			Publish:     &Publish{RoomId: room.externalId, Text: "  Hello, team!  "},
			session:     s1,
		})

		// sender receives the accept response first, then the fan-out copy
		select {
		case resp := <-s1.send:
			assert.NotNil(t, resp.Response, "expected first message to be a response")
			assert.Equal(t, http.StatusAccepted, resp.Response.ResponseCode, "expected accepted response")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: sender did not receive accept response")
		}

		for _, s := range []*Session{s1, s2} {
			select {
			case pub := <-s.send:
				assert.NotNil(t, pub.Message, "expected a message payload")
				assert.Equal(t, "msg-ext-1", pub.Message.Id, "expected the persisted message id")
				assert.Equal(t, "Hello, team!", pub.Message.Text, "expected trimmed text")
				assert.Equal(t, "user1", pub.Message.Author.Name, "expected the sender's name")
				assert.False(t, pub.Message.Anonymous, "expected a named message")
			case <-time.After(100 * time.Millisecond):
				t.Errorf("timeout: session %s did not receive the broadcast", s.id)
			}
		}
	})

	t.Run("anonymous publish seals the sender and masks the author", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)

		rs := newTestRelayServer(t, db)
		rs.generateShortId = func() (string, error) { return "msg-ext-2", nil }

		room := newTestRoom(t, rs, "room-1")
		room.dbId = conv.Id
		s1 := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
		s2 := newTestSession(t, "session-2", types.User{Id: "u2", Name: "user2"}, 2)
		room.addSession(s1)
		room.addSession(s2)

		now := Now()
		var sealed string
		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			sealed = p.EncryptedSender.String
			return !p.SenderId.Valid && p.EncryptedSender.Valid && p.IsAnonymous
		})).Return(database.Message{
			Id:                2,
			ExternalId:        "msg-ext-2",
			ConversationId:    conv.Id,
			ConversationExtId: conv.ExternalId,
			EncryptedSender:   toNullString("sealed-blob"),
			Content:           "unpopular opinion",
			IsAnonymous:       true,
			CreatedAt:         now,
		}, nil).Once()
		db.On("UpdateConversationLastMessage", conv.Id, "unpopular opinion", now).Return(nil).Once()

		room.handlePublish(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: now},
			Publish:     &Publish{RoomId: room.externalId, Text: "unpopular opinion", Anonymous: true},
			session:     s1,
		})

		// the sealed blob must decrypt back to the sender's id
		plaintext, err := rs.sealer.Open(sealed)
		assert.NoError(t, err, "expected sealed sender to decrypt")
		assert.Equal(t, "u1", plaintext, "expected sealed blob to hold the sender id")

		<-s1.send // accept response

		for _, s := range []*Session{s1, s2} {
			select {
			case pub := <-s.send:
				assert.NotNil(t, pub.Message, "expected a message payload")
				assert.True(t, pub.Message.Anonymous, "expected an anonymous message")
				assert.Equal(t, types.AnonymousName, pub.Message.Author.Name, "expected the author to be masked")
				assert.Empty(t, pub.Message.Author.Id, "expected no author id on an anonymous message")
			case <-time.After(100 * time.Millisecond):
				t.Errorf("timeout: session %s did not receive the broadcast", s.id)
			}
		}
	})

	t.Run("persistence failure reaches the sender only", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)

		rs := newTestRelayServer(t, db)
		rs.generateShortId = func() (string, error) { return "msg-ext-3", nil }

		room := newTestRoom(t, rs, "room-1")
		room.dbId = conv.Id
		s1 := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
		s2 := newTestSession(t, "session-2", types.User{Id: "u2", Name: "user2"}, 2)
		room.addSession(s1)
		room.addSession(s2)

		db.On("CreateMessage", mock.Anything).Return(database.Message{}, errors.New("db error")).Once()

		room.handlePublish(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Publish:     &Publish{RoomId: room.externalId, Text: "hello"},
			session:     s1,
		})

		select {
		case resp := <-s1.send:
			assert.NotNil(t, resp.Response, "expected an error response")
			assert.Equal(t, http.StatusInternalServerError, resp.Response.ResponseCode, "expected response code 500")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: sender did not receive error response")
		}

		assert.Len(t, s2.send, 0, "expected no broadcast after a failed write")
	})

	t.Run("blank text is rejected without touching the store", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)

		rs := newTestRelayServer(t, db)
		room := newTestRoom(t, rs, "room-1")
		s := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
		room.addSession(s)

		room.handlePublish(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Publish:     &Publish{RoomId: room.externalId, Text: "   "},
			session:     s,
		})

		select {
		case resp := <-s.send:
			assert.NotNil(t, resp.Response, "expected a response message")
			assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode, "expected response code 400")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: sender did not receive rejection")
		}

		db.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})

	t.Run("room with no backing conversation fails not found", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)

		rs := newTestRelayServer(t, db)
		room := newTestRoom(t, rs, "no-such-room")
		s := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
		room.addSession(s)

		db.On("GetConversationByExternalId", "no-such-room").Return(database.Conversation{}, errors.New("not found")).Once()

		room.handlePublish(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Publish:     &Publish{RoomId: room.externalId, Text: "hello"},
			session:     s,
		})

		select {
		case resp := <-s.send:
			assert.NotNil(t, resp.Response, "expected a response message")
			assert.Equal(t, http.StatusNotFound, resp.Response.ResponseCode, "expected response code 404")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: sender did not receive not found response")
		}
	})
}

func Test_handleTyping(t *testing.T) {
	t.Run("typing reaches everyone but the sender", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRepository{})
		room := newTestRoom(t, rs, "room-1")
		s1 := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
		s2 := newTestSession(t, "session-2", types.User{Id: "u2", Name: "user2"}, 2)
		room.addSession(s1)
		room.addSession(s2)

		room.handleTyping(&ClientMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Typing:      &Typing{RoomId: room.externalId},
			session:     s1,
		})

		assert.Len(t, s1.send, 0, "expected the sender to receive nothing")

		select {
		case msg := <-s2.send:
			assert.NotNil(t, msg.Typing, "expected a typing indicator")
			assert.Equal(t, room.externalId, msg.Typing.RoomId, "expected the indicator for this room")
			assert.Equal(t, "user1", msg.Typing.Name, "expected the typing user's name")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: other member did not receive typing indicator")
		}
	})

	t.Run("typing from a non-member is dropped", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRepository{})
		room := newTestRoom(t, rs, "room-1")
		member := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
		room.addSession(member)

		outsider := newTestSession(t, "session-2", types.User{Id: "u2", Name: "user2"}, 2)

		room.handleTyping(&ClientMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Typing:      &Typing{RoomId: room.externalId},
			session:     outsider,
		})

		assert.Len(t, member.send, 0, "expected no indicator from a non-member")
	})
}

func Test_handleRoomExit(t *testing.T) {
	t.Run("exit tears down memberships", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRepository{})
		room := newTestRoom(t, rs, "room-1")
		s := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
		room.addSession(s)

		room.handleRoomExit(exitReq{deleted: false})

		assert.NotContains(t, s.rooms, room.externalId, "expected room to be removed from session")
		assert.Len(t, s.send, 0, "expected no notification without the deleted flag")

		select {
		case <-room.done:
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: room did not signal done")
		}
	})

	t.Run("deleted room notifies members", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRepository{})
		room := newTestRoom(t, rs, "room-1")
		s := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
		room.addSession(s)

		room.handleRoomExit(exitReq{deleted: true})

		select {
		case msg := <-s.send:
			assert.NotNil(t, msg.Deleted, "expected a room deleted notification")
			assert.Equal(t, room.externalId, msg.Deleted.RoomId, "expected notification for this room")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: member did not receive room deleted notification")
		}
	})
}

func Test_broadcastSnapshot(t *testing.T) {
	rs := newTestRelayServer(t, &database.MockRepository{})
	room := newTestRoom(t, rs, "room-1")

	s1 := newTestSession(t, "session-1", types.User{Id: "u1", Name: "user1"}, 1)
	s2 := newTestSession(t, "session-2", types.User{Id: "u2", Name: "user2"}, 2)
	room.addSession(s1)
	room.addSession(s2)

	t.Run("broadcast reaches every member", func(t *testing.T) {
		msg := &ServerMessage{Message: &types.Message{Id: "m1"}}
		room.broadcast(msg)

		for _, s := range []*Session{s1, s2} {
			select {
			case m := <-s.send:
				assert.Same(t, msg, m, "expected session %s to receive the message", s.id)
			default:
				t.Errorf("expected session %s to receive the message", s.id)
			}
		}
	})

	t.Run("skip session is excluded", func(t *testing.T) {
		msg := &ServerMessage{Typing: &TypingIndicator{RoomId: "room-1"}, SkipSession: s1}
		room.broadcast(msg)

		select {
		case <-s1.send:
			t.Error("expected skipped session to receive nothing")
		default:
		}

		select {
		case m := <-s2.send:
			assert.Same(t, msg, m, "expected the other session to receive the message")
		default:
			t.Error("expected the other session to receive the message")
		}
	})

	t.Run("full send queue is skipped, not failed", func(t *testing.T) {
		blocked := &Session{
			id:    "session-3",
			user:  types.User{Id: "u3", Name: "user3"},
			send:  make(chan *ServerMessage), // unbuffered, nothing draining
			rooms: make(map[string]*Room),
			log:   testutil.TestLogger(t),
		}
		room.addSession(blocked)

		// must not block even though one member cannot accept
		room.broadcast(&ServerMessage{Message: &types.Message{Id: "m2"}})

		select {
		case m := <-s1.send:
			assert.Equal(t, "m2", m.Message.Id, "expected healthy member to receive the message")
		default:
			t.Error("expected healthy member to receive the message")
		}
	})
}
