package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/types"
)

func Test_listPosts_AnonymitySanitized(t *testing.T) {
	user := testAccount(1, "alice", "Member")

	posts := []database.Post{
		{
			Id:          10,
			ExternalId:  "post-1",
			UserId:      2,
			AuthorExtId: "u-bob",
			AuthorName:  "Bob",
			Content:     "An anonymous reflection",
			Type:        "Reflection",
			Anonymous:   true,
			Comments: []database.Comment{
				{
					ExternalId:  "comment-1",
					UserId:      3,
					AuthorExtId: "u-carol",
					AuthorName:  "Carol",
					Text:        "anonymous comment",
					Anonymous:   true,
				},
			},
		},
		{
			Id:          11,
			ExternalId:  "post-2",
			UserId:      2,
			AuthorExtId: "u-bob",
			AuthorName:  "Bob",
			Content:     "A named update",
			Type:        "Update",
		},
	}

	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	expectCurrentUser(db, user)
	db.On("ListPosts", mock.Anything).Return(posts, 2, nil).Once()

	app := newTestApp(t, db)

	rr := httptest.NewRecorder()
	req := authedRequest(httptest.NewRequest(http.MethodGet, "/api/posts", nil), user)
	app.listPosts(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp PostListResponse
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Len(t, resp.Posts, 2)
	assert.Equal(t, 2, resp.Total)

	anon := resp.Posts[0]
	assert.Equal(t, types.AnonymousName, anon.Author.Name, "expected the anonymous author to be masked")
	assert.Empty(t, anon.Author.Id, "expected no author id on anonymous posts")
	assert.Equal(t, types.AnonymousName, anon.Comments[0].Author.Name, "expected anonymous comments to be masked")
	assert.Empty(t, anon.Comments[0].Author.Id)

	named := resp.Posts[1]
	assert.Equal(t, "Bob", named.Author.Name)
	assert.Equal(t, "u-bob", named.Author.Id)
}

func Test_listPosts_Filters(t *testing.T) {
	user := testAccount(1, "alice", "Member")

	t.Run("invalid type", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, user)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodGet, "/api/posts?type=Gossip", nil), user)
		app.listPosts(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		db.AssertNotCalled(t, "ListPosts", mock.Anything)
	})

	t.Run("filters and pagination are parsed", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, user)
		db.On("ListPosts", database.PostFilter{
			Type:         "Decision",
			Tags:         []string{"infra", "q3"},
			Keyword:      "deploy",
			InsightsOnly: true,
			Page:         2,
			Limit:        100,
		}).Return([]database.Post{}, 0, nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodGet,
			"/api/posts?type=Decision&tags=infra,%20q3&keyword=deploy&insightsOnly=true&page=2&limit=500", nil), user)
		app.listPosts(rr, req)

		// a limit above the cap is clamped, not rejected
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func Test_createPost(t *testing.T) {
	user := testAccount(1, "alice", "Member")

	t.Run("successful create", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, user)
		db.On("CreatePost", database.CreatePostParams{
			ExternalId: "short-id",
			UserId:     user.Id,
			Content:    "shipping the relay",
			Type:       "Update",
			Tags:       []string{"infra"},
		}).Return(database.Post{
			Id:          10,
			ExternalId:  "short-id",
			UserId:      user.Id,
			AuthorExtId: user.ExternalId,
			AuthorName:  user.Name,
			Content:     "shipping the relay",
			Type:        "Update",
			Tags:        []string{"infra"},
		}, nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/posts", jsonBody(t, CreatePostRequest{
			Content: "  shipping the relay  ",
			Type:    "Update",
			Tags:    []string{"infra"},
		})), user)
		app.createPost(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp types.Post
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "short-id", resp.Id)
		assert.Equal(t, user.Name, resp.Author.Name)
	})

	t.Run("blank content", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, user)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/posts", jsonBody(t, CreatePostRequest{
			Content: "   ",
			Type:    "Update",
		})), user)
		app.createPost(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		db.AssertNotCalled(t, "CreatePost", mock.Anything)
	})

	t.Run("invalid type", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, user)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/posts", jsonBody(t, CreatePostRequest{
			Content: "hello",
			Type:    "Gossip",
		})), user)
		app.createPost(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_deletePost(t *testing.T) {
	post := database.Post{Id: 10, ExternalId: "post-1", UserId: 2}

	t.Run("author may delete", func(t *testing.T) {
		author := testAccount(2, "bob", "Member")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, author)
		db.On("GetPostByExternalId", "post-1").Return(post, nil).Once()
		db.On("DeletePost", post.Id).Return(nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodDelete, "/api/posts/post-1", nil), author)
		req.SetPathValue("id", "post-1")
		app.deletePost(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("admin may delete another user's post", func(t *testing.T) {
		admin := testAccount(3, "carol", "Admin")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, admin)
		db.On("GetPostByExternalId", "post-1").Return(post, nil).Once()
		db.On("DeletePost", post.Id).Return(nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodDelete, "/api/posts/post-1", nil), admin)
		req.SetPathValue("id", "post-1")
		app.deletePost(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("another member is forbidden", func(t *testing.T) {
		other := testAccount(4, "dave", "Member")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, other)
		db.On("GetPostByExternalId", "post-1").Return(post, nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodDelete, "/api/posts/post-1", nil), other)
		req.SetPathValue("id", "post-1")
		app.deletePost(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		db.AssertNotCalled(t, "DeletePost", mock.Anything)
	})

	t.Run("missing post", func(t *testing.T) {
		other := testAccount(4, "dave", "Member")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, other)
		db.On("GetPostByExternalId", "gone").Return(database.Post{}, sql.ErrNoRows).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodDelete, "/api/posts/gone", nil), other)
		req.SetPathValue("id", "gone")
		app.deletePost(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_commentOnPost(t *testing.T) {
	user := testAccount(1, "alice", "Member")
	post := database.Post{Id: 10, ExternalId: "post-1", UserId: 2}

	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	expectCurrentUser(db, user)
	db.On("GetPostByExternalId", "post-1").Return(post, nil).Twice()
	db.On("AddComment", "short-id", post.Id, user.Id, "nice work", true).Return(nil).Once()

	app := newTestApp(t, db)

	rr := httptest.NewRecorder()
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/posts/post-1/comment", jsonBody(t, CommentRequest{
		Text:      " nice work ",
		Anonymous: true,
	})), user)
	req.SetPathValue("id", "post-1")
	app.commentOnPost(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func Test_togglePostInsight(t *testing.T) {
	post := database.Post{Id: 10, ExternalId: "post-1", UserId: 2}

	t.Run("member is forbidden", func(t *testing.T) {
		member := testAccount(1, "alice", "Member")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, member)

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/posts/post-1/insight", jsonBody(t, InsightToggleRequest{
			IsInsight: true,
		})), member)
		req.SetPathValue("id", "post-1")
		app.togglePostInsight(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		db.AssertNotCalled(t, "SetPostInsight", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reviewer may mark", func(t *testing.T) {
		reviewer := testAccount(5, "erin", "Reviewer")
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		expectCurrentUser(db, reviewer)
		db.On("GetPostByExternalId", "post-1").Return(post, nil).Twice()
		db.On("SetPostInsight", post.Id, true, reviewer.Id).Return(nil).Once()

		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/posts/post-1/insight", jsonBody(t, InsightToggleRequest{
			IsInsight: true,
		})), reviewer)
		req.SetPathValue("id", "post-1")
		app.togglePostInsight(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
