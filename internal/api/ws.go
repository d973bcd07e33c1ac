package api

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/commitkings/commitkings/internal/relay"
)

func (s *CommitKingsApp) serveWs(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	session := relay.NewSession(renderUser(user), user.Id, conn, s.relay, s.log)

	s.relay.RegisterSession(session)
	go session.Write()
	go session.Read()
}
