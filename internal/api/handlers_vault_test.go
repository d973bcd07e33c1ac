package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/types"
)

func Test_createMeeting(t *testing.T) {
	user := testAccount(1, "alice", "Member")
	scheduledAt := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	t.Run("successful create", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, user)
		db.On("CreateMeeting", database.CreateMeetingParams{
			ExternalId:  "short-id",
			Title:       "sprint review",
			ScheduledAt: scheduledAt,
			Transcript:  "Alice: hello\nBob: hi",
			Tags:        []string{"sprint"},
		}).Return(database.Meeting{
			Id:          1,
			ExternalId:  "short-id",
			Title:       "sprint review",
			ScheduledAt: scheduledAt,
			Transcript:  "Alice: hello\nBob: hi",
			Tags:        []string{"sprint"},
		}, nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/meetings", jsonBody(t, CreateMeetingRequest{
			Title:       " sprint review ",
			ScheduledAt: scheduledAt,
			Transcript:  "Alice: hello\nBob: hi",
			Tags:        []string{"sprint"},
		})), user)
		app.createMeeting(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp types.Meeting
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "short-id", resp.Id)
		assert.Equal(t, "sprint review", resp.Title)
	})

	t.Run("blank title", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, user)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/meetings", jsonBody(t, CreateMeetingRequest{
			Title: "  ",
		})), user)
		app.createMeeting(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		db.AssertNotCalled(t, "CreateMeeting", mock.Anything)
	})
}

func Test_deleteMeeting_AdminOnly(t *testing.T) {
	member := testAccount(1, "alice", "Reviewer")

	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	expectCurrentUser(db, member)

	app := newTestApp(t, db)

	rr := httptest.NewRecorder()
	req := authedRequest(httptest.NewRequest(http.MethodDelete, "/api/meetings/meeting-1", nil), member)
	req.SetPathValue("id", "meeting-1")
	app.deleteMeeting(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	db.AssertNotCalled(t, "DeleteMeeting", mock.Anything)
}

func Test_toggleTranscriptInsight(t *testing.T) {
	meeting := database.Meeting{
		Id:           1,
		ExternalId:   "meeting-1",
		Title:        "sprint review",
		Transcript:   "Alice: hello\nBob: a key decision\nCarol: agreed",
		InsightLines: []int{2},
	}

	t.Run("member is forbidden", func(t *testing.T) {
		member := testAccount(1, "alice", "Member")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, member)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/meetings/meeting-1/transcript/1/insight", nil), member)
		req.SetPathValue("id", "meeting-1")
		req.SetPathValue("index", "1")
		app.toggleTranscriptInsight(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("marks a line", func(t *testing.T) {
		reviewer := testAccount(5, "erin", "Reviewer")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, reviewer)
		db.On("GetMeetingByExternalId", "meeting-1").Return(meeting, nil).Once()
		db.On("SetTranscriptInsights", meeting.Id, []int{1, 2}).Return(nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/meetings/meeting-1/transcript/1/insight", nil), reviewer)
		req.SetPathValue("id", "meeting-1")
		req.SetPathValue("index", "1")
		app.toggleTranscriptInsight(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp types.Meeting
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, []int{1, 2}, resp.InsightLines)
	})

	t.Run("unmarks a marked line", func(t *testing.T) {
		reviewer := testAccount(5, "erin", "Reviewer")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, reviewer)
		db.On("GetMeetingByExternalId", "meeting-1").Return(meeting, nil).Once()
		db.On("SetTranscriptInsights", meeting.Id, []int{}).Return(nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/meetings/meeting-1/transcript/2/insight", nil), reviewer)
		req.SetPathValue("id", "meeting-1")
		req.SetPathValue("index", "2")
		app.toggleTranscriptInsight(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("index out of range", func(t *testing.T) {
		reviewer := testAccount(5, "erin", "Reviewer")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, reviewer)
		db.On("GetMeetingByExternalId", "meeting-1").Return(meeting, nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/meetings/meeting-1/transcript/9/insight", nil), reviewer)
		req.SetPathValue("id", "meeting-1")
		req.SetPathValue("index", "9")
		app.toggleTranscriptInsight(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		db.AssertNotCalled(t, "SetTranscriptInsights", mock.Anything, mock.Anything)
	})
}

func Test_markVaultInsight(t *testing.T) {
	t.Run("member is forbidden", func(t *testing.T) {
		member := testAccount(1, "alice", "Member")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, member)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/vault/insights", jsonBody(t, MarkInsightRequest{
			SourceId:   "msg-1",
			SourceType: "Message",
			Content:    "a key decision",
		})), member)
		app.markVaultInsight(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		db.AssertNotCalled(t, "CreateInsight", mock.Anything)
	})

	t.Run("reviewer may mark", func(t *testing.T) {
		reviewer := testAccount(5, "erin", "Reviewer")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, reviewer)
		db.On("CreateInsight", database.CreateInsightParams{
			ExternalId:  "short-id",
			SourceExtId: "msg-1",
			SourceType:  "Message",
			MarkedBy:    reviewer.Id,
			Tags:        []string{"decisions"},
			Content:     "a key decision",
		}).Return(database.Insight{
			Id:          1,
			ExternalId:  "short-id",
			SourceExtId: "msg-1",
			SourceType:  "Message",
			MarkedBy:    reviewer.Id,
			MarkerExtId: reviewer.ExternalId,
			MarkerName:  reviewer.Name,
			Tags:        []string{"decisions"},
			Content:     "a key decision",
		}, nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/vault/insights", jsonBody(t, MarkInsightRequest{
			SourceId:   "msg-1",
			SourceType: "Message",
			Tags:       []string{"decisions"},
			Content:    "a key decision",
		})), reviewer)
		app.markVaultInsight(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp types.Insight
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "short-id", resp.Id)
		assert.Equal(t, reviewer.ExternalId, resp.MarkedBy.Id)
	})

	t.Run("unknown source type", func(t *testing.T) {
		reviewer := testAccount(5, "erin", "Reviewer")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, reviewer)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/vault/insights", jsonBody(t, MarkInsightRequest{
			SourceId:   "msg-1",
			SourceType: "Rumor",
			Content:    "a key decision",
		})), reviewer)
		app.markVaultInsight(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_listVaultInsights(t *testing.T) {
	user := testAccount(1, "alice", "Member")

	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	expectCurrentUser(db, user)
	db.On("ListInsights", "decisions").Return([]database.Insight{
		{Id: 1, ExternalId: "insight-1", SourceExtId: "msg-1", SourceType: "Message", Content: "a key decision"},
	}, nil).Once()

	app := newTestApp(t, db)

	rr := httptest.NewRecorder()
	req := authedRequest(httptest.NewRequest(http.MethodGet, "/api/vault/insights?tag=decisions", nil), user)
	app.listVaultInsights(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp []types.Insight
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Len(t, resp, 1)
	assert.Equal(t, "insight-1", resp[0].Id)
}
