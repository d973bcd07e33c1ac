package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/commitkings/commitkings/internal/ai"
	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/relay"
	"github.com/commitkings/commitkings/internal/types"
)

type CreateConversationRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Type           string   `json:"type"`
	ParticipantIds []string `json:"participant_ids"`
}

type UpdateConversationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ParticipantsRequest struct {
	ParticipantIds []string `json:"participant_ids"`
}

type ReviewersRequest struct {
	ReviewerIds []string `json:"reviewer_ids"`
}

type SendMessageRequest struct {
	Text      string `json:"text"`
	Anonymous bool   `json:"anonymous"`
}

type SummarizeRequest struct {
	Question string `json:"question"`
}

type SummarizeResponse struct {
	Summary string `json:"summary"`
}

type AiFeedbackRequest struct {
	Text     string   `json:"text"`
	Personas []string `json:"personas"`
}

type AiFeedbackResponse struct {
	Feedback []types.PersonaFeedback `json:"feedback"`
}

const summaryFallback = "Could not generate a summary at this time. Please try again."

func (s *CommitKingsApp) listOrgUsers(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users, err := s.db.ListOrgUsers(user.OrgCode)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	out := make([]types.User, 0, len(users))
	for _, u := range users {
		if u.Id == user.Id {
			continue
		}
		out = append(out, renderUser(u))
	}

	s.writeJson(w, http.StatusOK, out)
}

func (s *CommitKingsApp) fetchConversation(r *http.Request) (database.Conversation, *ApiError) {
	conv, err := s.db.GetConversationByExternalId(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Conversation{}, NewNotFoundError()
		}
		return database.Conversation{}, NewInternalServerError(err)
	}

	return conv, nil
}

func findParticipant(conv database.Conversation, userId int) (database.Participant, bool) {
	for _, p := range conv.Participants {
		if p.UserId == userId {
			return p, true
		}
	}
	return database.Participant{}, false
}

// canRead reports whether a user may read a conversation. Team rooms
// are open to the whole org; direct conversations are members only.
func canRead(conv database.Conversation, userId int) bool {
	if types.ConversationType(conv.Type) == types.ConversationTeam {
		return true
	}
	_, ok := findParticipant(conv, userId)
	return ok
}

func (s *CommitKingsApp) listConversations(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convs, err := s.db.ListConversations(user.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	out := make([]types.Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, renderConversation(c))
	}

	s.writeJson(w, http.StatusOK, out)
}

func (s *CommitKingsApp) createConversation(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convType := types.ConversationType(req.Type)
	switch convType {
	case types.ConversationTeam:
		if strings.TrimSpace(req.Name) == "" {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	case types.ConversationDirect:
		if len(req.ParticipantIds) != 1 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	default:
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participantIds, errResp := s.resolveAccountIds(req.ParticipantIds)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, err := s.db.CreateConversation(database.CreateConversationParams{
		ExternalId:     sid,
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		Type:           string(convType),
		CreatedBy:      user.Id,
		ParticipantIds: participantIds,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, renderConversation(conv))
}

// resolveAccountIds maps external account ids to store ids, rejecting
// unknown members with a 400 rather than silently dropping them.
func (s *CommitKingsApp) resolveAccountIds(externalIds []string) ([]int, *ApiError) {
	ids := make([]int, 0, len(externalIds))
	for _, extId := range externalIds {
		account, err := s.db.GetAccountByExternalId(extId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, NewBadRequestError()
			}
			return nil, NewInternalServerError(err)
		}
		ids = append(ids, account.Id)
	}
	return ids, nil
}

func (s *CommitKingsApp) getConversation(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, errResp := s.fetchConversation(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !canRead(conv, user.Id) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, renderConversation(conv))
}

func (s *CommitKingsApp) updateConversation(w http.ResponseWriter, r *http.Request) {
	_, conv, errResp := s.requireAdmin(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.UpdateConversation(conv.Id, strings.TrimSpace(req.Name), req.Description); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.respondWithConversation(w, conv.ExternalId)
}

func (s *CommitKingsApp) deleteConversation(w http.ResponseWriter, r *http.Request) {
	_, conv, errResp := s.requireAdmin(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteConversation(conv.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// unload the live room and notify any connected members
	s.relay.RemoveRoom(conv.ExternalId)

	w.WriteHeader(http.StatusNoContent)
}

// requireAdmin loads the conversation and checks the caller holds the
// conversation admin flag.
func (s *CommitKingsApp) requireAdmin(r *http.Request) (database.User, database.Conversation, *ApiError) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		return database.User{}, database.Conversation{}, errResp
	}

	conv, errResp := s.fetchConversation(r)
	if errResp != nil {
		return database.User{}, database.Conversation{}, errResp
	}

	p, ok := findParticipant(conv, user.Id)
	if !ok || !p.IsAdmin {
		return database.User{}, database.Conversation{}, NewForbiddenError()
	}

	return user, conv, nil
}

func (s *CommitKingsApp) leaveConversation(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, errResp := s.fetchConversation(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, ok := findParticipant(conv, user.Id); !ok {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.RemoveParticipant(conv.Id, user.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	remaining, err := s.db.GetConversationByExternalId(conv.ExternalId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// an empty conversation is deleted outright; one that loses its
	// last admin promotes the longest-standing remaining participant
	if len(remaining.Participants) == 0 {
		if err := s.db.DeleteConversation(conv.Id); err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		s.relay.RemoveRoom(conv.ExternalId)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	hasAdmin := false
	for _, p := range remaining.Participants {
		if p.IsAdmin {
			hasAdmin = true
			break
		}
	}
	if !hasAdmin {
		if err := s.db.SetAdmin(conv.Id, remaining.Participants[0].UserId, true); err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *CommitKingsApp) addParticipants(w http.ResponseWriter, r *http.Request) {
	_, conv, errResp := s.requireAdmin(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ParticipantsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.ParticipantIds) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ids, errResp := s.resolveAccountIds(req.ParticipantIds)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.AddParticipants(conv.Id, ids); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.respondWithConversation(w, conv.ExternalId)
}

func (s *CommitKingsApp) removeParticipant(w http.ResponseWriter, r *http.Request) {
	_, conv, errResp := s.requireAdmin(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	target, err := s.db.GetAccountByExternalId(r.PathValue("userId"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, ok := findParticipant(conv, target.Id); !ok {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.RemoveParticipant(conv.Id, target.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.respondWithConversation(w, conv.ExternalId)
}

func (s *CommitKingsApp) setReviewers(w http.ResponseWriter, r *http.Request) {
	_, conv, errResp := s.requireAdmin(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ReviewersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ids, errResp := s.resolveAccountIds(req.ReviewerIds)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SetReviewers(conv.Id, ids); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.respondWithConversation(w, conv.ExternalId)
}

func (s *CommitKingsApp) respondWithConversation(w http.ResponseWriter, externalId string) {
	conv, err := s.db.GetConversationByExternalId(externalId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, renderConversation(conv))
}

func (s *CommitKingsApp) listMessages(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, errResp := s.fetchConversation(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !canRead(conv, user.Id) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit := 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	msgs, err := s.db.ListMessages(conv.Id, r.URL.Query().Get("insightsOnly") == "true", limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, renderMessages(msgs))
}

// sendMessage persists a message and then fans it out through the
// relay to the room's live members.
func (s *CommitKingsApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, errResp := s.fetchConversation(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !canRead(conv, user.Id) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateMessageParams{
		ExternalId:     sid,
		ConversationId: conv.Id,
		Content:        req.Text,
		IsAnonymous:    req.Anonymous,
		CreatedAt:      relay.Now(),
	}

	if req.Anonymous {
		sealed, err := s.sealer.Seal(user.ExternalId)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		params.EncryptedSender = sql.NullString{String: sealed, Valid: true}
	} else {
		params.SenderId = sql.NullInt64{Int64: int64(user.Id), Valid: true}
	}

	dbMsg, err := s.db.CreateMessage(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.UpdateConversationLastMessage(conv.Id, req.Text, dbMsg.CreatedAt); err != nil {
		s.log.Println("update last message:", err)
	}

	wire := relay.RenderMessage(dbMsg)
	s.relay.Broadcast(conv.ExternalId, &wire)

	s.writeJson(w, http.StatusCreated, wire)
}

func (s *CommitKingsApp) toggleMessageInsight(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !types.Role(user.Role).Elevated() {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.GetMessageByExternalId(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req InsightToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SetMessageInsight(msg.Id, req.IsInsight); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	updated, err := s.db.GetMessageByExternalId(msg.ExternalId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, relay.RenderMessage(updated))
}

func (s *CommitKingsApp) listConversationInsights(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, errResp := s.fetchConversation(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !canRead(conv, user.Id) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msgs, err := s.db.ListMessages(conv.Id, true, 0)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, renderMessages(msgs))
}

// summarizeConversation feeds the transcript to the gateway, answering
// a specific question when one is supplied. Expiry or gateway failure
// degrades to a fallback summary rather than an error.
func (s *CommitKingsApp) summarizeConversation(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, errResp := s.fetchConversation(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !canRead(conv, user.Id) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SummarizeRequest
	if r.Body != nil {
		// the body is optional; an empty question means a full summary
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	msgs, err := s.db.ListMessages(conv.Id, false, 0)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if len(msgs) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	transcript := buildTranscript(msgs)

	ctx, cancel := context.WithTimeout(r.Context(), ai.SummarizeTimeout)
	defer cancel()

	summary, err := s.gateway.Summarize(ctx, transcript, strings.TrimSpace(req.Question))
	if err != nil {
		s.log.Println("summarize:", err)
		summary = summaryFallback
	}

	s.writeJson(w, http.StatusOK, SummarizeResponse{Summary: summary})
}

// buildTranscript renders messages as "name: text" lines. Anonymous
// senders stay anonymous in the transcript handed to the model.
func buildTranscript(msgs []database.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		name := types.AnonymousName
		if !m.IsAnonymous && m.SenderName.Valid {
			name = m.SenderName.String
		}
		fmt.Fprintf(&b, "%s: %s\n", name, m.Content)
	}
	return b.String()
}

// aiFeedback generates feedback from each requested persona in
// parallel. A persona that fails or times out contributes its fallback
// line; the request as a whole still succeeds.
func (s *CommitKingsApp) aiFeedback(w http.ResponseWriter, r *http.Request) {
	if _, errResp := s.currentUser(r); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req AiFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	personas := req.Personas
	if len(personas) == 0 {
		personas = []string{ai.PersonaInvestor, ai.PersonaCritical, ai.PersonaOptimist, ai.PersonaTeamLead}
	}

	feedback := make([]types.PersonaFeedback, len(personas))
	var wg sync.WaitGroup
	for i, persona := range personas {
		wg.Add(1)
		go func(i int, persona string) {
			defer wg.Done()
			result, _ := ai.GenerateWithFallback(r.Context(), s.gateway, req.Text, persona, ai.FeedbackTimeout)
			feedback[i] = types.PersonaFeedback{
				Persona:  ai.NormalizePersona(persona),
				Feedback: result,
			}
		}(i, persona)
	}
	wg.Wait()

	s.writeJson(w, http.StatusOK, AiFeedbackResponse{Feedback: feedback})
}
