package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"

	"github.com/commitkings/commitkings/internal/ai"
	"github.com/commitkings/commitkings/internal/auth"
	"github.com/commitkings/commitkings/internal/config"
	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/relay"
	"github.com/commitkings/commitkings/internal/secret"
)

type CommitKingsApp struct {
	log            *log.Logger
	db             database.Repository
	mux            *http.Server
	relay          *relay.RelayServer
	verifier       *auth.Verifier
	sealer         *secret.Sealer
	gateway        ai.Gateway
	allowedOrigins []string
	// generateShortId is overridable in tests
	generateShortId func() (string, error)
}

func NewCommitKingsApp(mux *http.ServeMux, logger *log.Logger, rs *relay.RelayServer, db database.Repository, verifier *auth.Verifier, sealer *secret.Sealer, gateway ai.Gateway, cfg *config.Config) *CommitKingsApp {
	s := &CommitKingsApp{
		log:             logger,
		db:              db,
		relay:           rs,
		verifier:        verifier,
		sealer:          sealer,
		gateway:         gateway,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("POST /api/auth/signup", s.signup)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/me", s.authMiddleware(s.me))
	mux.Handle("PUT /api/auth/profile", s.authMiddleware(s.updateProfile))

	mux.Handle("GET /api/posts", s.authMiddleware(s.listPosts))
	mux.Handle("POST /api/posts", s.authMiddleware(s.createPost))
	mux.Handle("PUT /api/posts/{id}", s.authMiddleware(s.updatePost))
	mux.Handle("DELETE /api/posts/{id}", s.authMiddleware(s.deletePost))
	mux.Handle("POST /api/posts/{id}/react", s.authMiddleware(s.reactToPost))
	mux.Handle("POST /api/posts/{id}/comment", s.authMiddleware(s.commentOnPost))
	mux.Handle("POST /api/posts/{id}/repost", s.authMiddleware(s.repostPost))
	mux.Handle("POST /api/posts/{id}/insight", s.authMiddleware(s.togglePostInsight))

	mux.Handle("GET /api/chat/users", s.authMiddleware(s.listOrgUsers))
	mux.Handle("GET /api/chat/conversations", s.authMiddleware(s.listConversations))
	mux.Handle("POST /api/chat/conversations", s.authMiddleware(s.createConversation))
	mux.Handle("GET /api/chat/conversations/{id}", s.authMiddleware(s.getConversation))
	mux.Handle("PUT /api/chat/conversations/{id}", s.authMiddleware(s.updateConversation))
	mux.Handle("DELETE /api/chat/conversations/{id}", s.authMiddleware(s.deleteConversation))
	mux.Handle("POST /api/chat/conversations/{id}/leave", s.authMiddleware(s.leaveConversation))
	mux.Handle("POST /api/chat/conversations/{id}/participants", s.authMiddleware(s.addParticipants))
	mux.Handle("DELETE /api/chat/conversations/{id}/participants/{userId}", s.authMiddleware(s.removeParticipant))
	mux.Handle("PUT /api/chat/conversations/{id}/reviewers", s.authMiddleware(s.setReviewers))
	mux.Handle("GET /api/chat/conversations/{id}/insights", s.authMiddleware(s.listConversationInsights))
	mux.Handle("POST /api/chat/conversations/{id}/summarize", s.authMiddleware(s.summarizeConversation))
	mux.Handle("GET /api/chat/conversations/{id}/messages", s.authMiddleware(s.listMessages))
	mux.Handle("POST /api/chat/conversations/{id}/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("POST /api/chat/messages/{id}/insight", s.authMiddleware(s.toggleMessageInsight))
	mux.Handle("POST /api/chat/ai-feedback", s.authMiddleware(s.aiFeedback))

	mux.Handle("GET /api/meetings", s.authMiddleware(s.listMeetings))
	mux.Handle("POST /api/meetings", s.authMiddleware(s.createMeeting))
	mux.Handle("GET /api/meetings/{id}", s.authMiddleware(s.getMeeting))
	mux.Handle("DELETE /api/meetings/{id}", s.authMiddleware(s.deleteMeeting))
	mux.Handle("POST /api/meetings/{id}/transcript/{index}/insight", s.authMiddleware(s.toggleTranscriptInsight))
	mux.Handle("GET /api/vault/insights", s.authMiddleware(s.listVaultInsights))
	mux.Handle("POST /api/vault/insights", s.authMiddleware(s.markVaultInsight))

	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *CommitKingsApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *CommitKingsApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *CommitKingsApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *CommitKingsApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}
