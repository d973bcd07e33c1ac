package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/types"
)

type CreateMeetingRequest struct {
	Title        string    `json:"title"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	RecordingUrl string    `json:"recording_url"`
	Transcript   string    `json:"transcript"`
	Tags         []string  `json:"tags"`
}

type MarkInsightRequest struct {
	SourceId   string   `json:"source_id"`
	SourceType string   `json:"source_type"`
	Tags       []string `json:"tags"`
	Content    string   `json:"content"`
	AiSummary  string   `json:"ai_summary"`
}

func (s *CommitKingsApp) listMeetings(w http.ResponseWriter, r *http.Request) {
	if _, errResp := s.currentUser(r); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	meetings, err := s.db.ListMeetings()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	out := make([]types.Meeting, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, renderMeeting(m))
	}

	s.writeJson(w, http.StatusOK, out)
}

func (s *CommitKingsApp) createMeeting(w http.ResponseWriter, r *http.Request) {
	if _, errResp := s.currentUser(r); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.ScheduledAt.IsZero() {
		req.ScheduledAt = time.Now().UTC()
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	meeting, err := s.db.CreateMeeting(database.CreateMeetingParams{
		ExternalId:   sid,
		Title:        req.Title,
		ScheduledAt:  req.ScheduledAt,
		RecordingUrl: req.RecordingUrl,
		Transcript:   req.Transcript,
		Tags:         req.Tags,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, renderMeeting(meeting))
}

func (s *CommitKingsApp) fetchMeeting(r *http.Request) (database.Meeting, *ApiError) {
	meeting, err := s.db.GetMeetingByExternalId(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Meeting{}, NewNotFoundError()
		}
		return database.Meeting{}, NewInternalServerError(err)
	}

	return meeting, nil
}

func (s *CommitKingsApp) getMeeting(w http.ResponseWriter, r *http.Request) {
	if _, errResp := s.currentUser(r); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	meeting, errResp := s.fetchMeeting(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, renderMeeting(meeting))
}

func (s *CommitKingsApp) deleteMeeting(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if types.Role(user.Role) != types.RoleAdmin {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	meeting, errResp := s.fetchMeeting(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteMeeting(meeting.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toggleTranscriptInsight flips the insight flag on one transcript line,
// addressed by its zero-based index.
func (s *CommitKingsApp) toggleTranscriptInsight(w http.ResponseWriter, r *http.Request) {
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

	meeting, errResp := s.fetchMeeting(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	lineCount := 0
	if meeting.Transcript != "" {
		lineCount = strings.Count(meeting.Transcript, "\n") + 1
	}
	if index >= lineCount {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	lines := meeting.InsightLines
	if i := slices.Index(lines, index); i >= 0 {
		lines = slices.Delete(slices.Clone(lines), i, i+1)
	} else {
		lines = append(slices.Clone(lines), index)
		slices.Sort(lines)
	}

	if err := s.db.SetTranscriptInsights(meeting.Id, lines); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	meeting.InsightLines = lines
	s.writeJson(w, http.StatusOK, renderMeeting(meeting))
}

func (s *CommitKingsApp) listVaultInsights(w http.ResponseWriter, r *http.Request) {
	if _, errResp := s.currentUser(r); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	insights, err := s.db.ListInsights(r.URL.Query().Get("tag"))
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	out := make([]types.Insight, 0, len(insights))
	for _, i := range insights {
		out = append(out, renderInsight(i))
	}

	s.writeJson(w, http.StatusOK, out)
}

// markVaultInsight records a curated insight in the vault. Reviewer or
// admin role required.
func (s *CommitKingsApp) markVaultInsight(w http.ResponseWriter, r *http.Request) {
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

	var req MarkInsightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.SourceId == "" || req.Content == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	switch types.InsightSource(req.SourceType) {
	case types.InsightSourceMessage, types.InsightSourcePost:
	default:
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

	insight, err := s.db.CreateInsight(database.CreateInsightParams{
		ExternalId:  sid,
		SourceExtId: req.SourceId,
		SourceType:  req.SourceType,
		MarkedBy:    user.Id,
		Tags:        req.Tags,
		Content:     req.Content,
		AiSummary:   req.AiSummary,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, renderInsight(insight))
}
