package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CreatePostRequest struct {
	Content   string   `json:"content"`
	Type      string   `json:"type"`
	Anonymous bool     `json:"anonymous"`
	AiToggle  bool     `json:"ai_toggle"`
	Tags      []string `json:"tags"`
}

type PostListResponse struct {
	Posts []types.Post `json:"posts"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

type ReactRequest struct {
	Emoji string `json:"emoji"`
}

type CommentRequest struct {
	Text      string `json:"text"`
	Anonymous bool   `json:"anonymous"`
}

type InsightToggleRequest struct {
	IsInsight bool `json:"is_insight"`
}

func validPostType(t string) bool {
	switch types.PostType(t) {
	case types.PostReflection, types.PostUpdate, types.PostDecision, types.PostMeeting:
		return true
	}
	return false
}

func (s *CommitKingsApp) listPosts(w http.ResponseWriter, r *http.Request) {
	if _, errResp := s.currentUser(r); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	q := r.URL.Query()

	filter := database.PostFilter{
		Type:         q.Get("type"),
		Keyword:      q.Get("keyword"),
		InsightsOnly: q.Get("insightsOnly") == "true",
		Page:         1,
		Limit:        defaultPageSize,
	}

	if filter.Type != "" && !validPostType(filter.Type) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if tags := q.Get("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}

	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = min(limit, maxPageSize)
	}

	posts, total, err := s.db.ListPosts(filter)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := PostListResponse{
		Posts: make([]types.Post, 0, len(posts)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for _, p := range posts {
		resp.Posts = append(resp.Posts, renderPost(p))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *CommitKingsApp) createPost(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" || !validPostType(req.Type) {
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

	post, err := s.db.CreatePost(database.CreatePostParams{
		ExternalId: sid,
		UserId:     user.Id,
		Content:    req.Content,
		Type:       req.Type,
		Anonymous:  req.Anonymous,
		AiToggle:   req.AiToggle,
		Tags:       req.Tags,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, renderPost(post))
}

// fetchPost loads the post addressed by the path id.
func (s *CommitKingsApp) fetchPost(r *http.Request) (database.Post, *ApiError) {
	post, err := s.db.GetPostByExternalId(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Post{}, NewNotFoundError()
		}
		return database.Post{}, NewInternalServerError(err)
	}

	return post, nil
}

func (s *CommitKingsApp) updatePost(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	post, errResp := s.fetchPost(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if post.UserId != user.Id {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" || !validPostType(req.Type) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	updated, err := s.db.UpdatePost(database.UpdatePostParams{
		PostId:    post.Id,
		Content:   req.Content,
		Type:      req.Type,
		Anonymous: req.Anonymous,
		AiToggle:  req.AiToggle,
		Tags:      req.Tags,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, renderPost(updated))
}

func (s *CommitKingsApp) deletePost(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	post, errResp := s.fetchPost(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if post.UserId != user.Id && types.Role(user.Role) != types.RoleAdmin {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeletePost(post.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *CommitKingsApp) reactToPost(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	post, errResp := s.fetchPost(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ReactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Emoji == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.AddReaction(post.Id, user.Id, req.Emoji); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.respondWithPost(w, post.ExternalId)
}

func (s *CommitKingsApp) commentOnPost(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	post, errResp := s.fetchPost(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CommentRequest
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

	if err := s.db.AddComment(sid, post.Id, user.Id, req.Text, req.Anonymous); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.respondWithPost(w, post.ExternalId)
}

func (s *CommitKingsApp) repostPost(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	post, errResp := s.fetchPost(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.AddRepost(post.Id, user.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.respondWithPost(w, post.ExternalId)
}

// togglePostInsight is restricted to reviewers and admins.
func (s *CommitKingsApp) togglePostInsight(w http.ResponseWriter, r *http.Request) {
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

	post, errResp := s.fetchPost(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req InsightToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SetPostInsight(post.Id, req.IsInsight, user.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.respondWithPost(w, post.ExternalId)
}

func (s *CommitKingsApp) respondWithPost(w http.ResponseWriter, externalId string) {
	post, err := s.db.GetPostByExternalId(externalId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, renderPost(post))
}
