package post

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gomock "github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tathya/pkg/apperr"
	"tathya/pkg/comment"
	"tathya/pkg/likes"
	"tathya/pkg/sessions"
	"tathya/pkg/user"
)

var (
	student   = &user.User{Id: "u1", Username: "mira", Role: user.RoleStudent}
	moderator = &user.User{Id: "m1", Username: "warden", Role: user.RoleModerator}
)

func authRequest(method, url, body string, u *user.User, vars map[string]string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, url, nil)
	} else {
		r = httptest.NewRequest(method, url, strings.NewReader(body))
	}
	if u != nil {
		r = r.WithContext(context.WithValue(r.Context(), sessions.SessionKey, u))
	}
	if vars != nil {
		r = mux.SetURLVars(r, vars)
	}
	return r
}

func TestListHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := NewMockIPostRepo(ctrl)
	ph := NewPostHandler(mockRepo, NewMockIFileStorage(ctrl))

	anonPost := &Post{
		Id:          PostId("p1"),
		Author:      student,
		Title:       "ragging in block C",
		IsAnonymous: true,
		IsVisible:   true,
		Approved:    true,
	}
	feed := &Feed{Items: []*Post{anonPost}, Page: 1, TotalPages: 1, TotalCount: 1}

	mockRepo.EXPECT().ListRecent(gomock.Any(), 2, DefaultPageSize).Return(feed, nil)

	w := httptest.NewRecorder()
	ph.List(w, authRequest("GET", "/api/posts/?pageNumber=2", "", nil, nil))

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := struct {
		Items []struct {
			Id     string     `json:"id"`
			Author *user.User `json:"author"`
		} `json:"items"`
	}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "p1", got.Items[0].Id)
	assert.Nil(t, got.Items[0].Author, "anonymous author must not leak into the feed")
}

func TestToggleLikeHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := NewMockIPostRepo(ctrl)
	ph := NewPostHandler(mockRepo, NewMockIFileStorage(ctrl))

	t.Run("post like", func(t *testing.T) {
		mockRepo.EXPECT().
			ToggleLike(gomock.Any(), PostId("p1"), PostTarget, student.Id).
			Return(3, nil)

		w := httptest.NewRecorder()
		ph.LikePost(w, authRequest("POST", "/api/post/p1/like", "", student,
			map[string]string{"post_id": "p1"}))

		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Contains(t, w.Body.String(), `"likes":3`)
	})

	t.Run("reply like", func(t *testing.T) {
		mockRepo.EXPECT().
			ToggleLike(gomock.Any(), PostId("p1"),
				ReplyTarget(comment.CommentId("c1"), comment.ReplyId("r1")), student.Id).
			Return(1, nil)

		w := httptest.NewRecorder()
		ph.LikeReply(w, authRequest("POST", "/api/post/p1/comments/c1/replies/r1/like", "", student,
			map[string]string{"post_id": "p1", "comment_id": "c1", "reply_id": "r1"}))

		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Contains(t, w.Body.String(), `"likes":1`)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		ph.LikePost(w, authRequest("POST", "/api/post/p1/like", "", nil,
			map[string]string{"post_id": "p1"}))

		assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
	})

	t.Run("unknown target", func(t *testing.T) {
		mockRepo.EXPECT().
			ToggleLike(gomock.Any(), PostId("p1"), CommentTarget("missing"), student.Id).
			Return(0, fmt.Errorf("post/repo: comment missing: %w", apperr.ErrNotFound))

		w := httptest.NewRecorder()
		ph.LikeComment(w, authRequest("POST", "/api/post/p1/comments/missing/like", "", student,
			map[string]string{"post_id": "p1", "comment_id": "missing"}))

		assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
	})
}

func TestAddCommentHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := NewMockIPostRepo(ctrl)
	ph := NewPostHandler(mockRepo, NewMockIFileStorage(ctrl))

	t.Run("created", func(t *testing.T) {
		refreshed := &Post{Id: PostId("p1"), Author: student, Comments: []*comment.Comment{}}
		mockRepo.EXPECT().
			AddComment(gomock.Any(), PostId("p1"), student, "looks bad", comment.CommentId(``)).
			Return("new-comment-id", nil)
		mockRepo.EXPECT().
			GetById(gomock.Any(), PostId("p1")).
			Return(refreshed, nil)

		w := httptest.NewRecorder()
		ph.AddComment(w, authRequest("POST", "/api/post/p1/comments",
			`{"content": "looks bad"}`, student, map[string]string{"post_id": "p1"}))

		require.Equal(t, http.StatusCreated, w.Result().StatusCode)
		assert.Contains(t, w.Body.String(), "new-comment-id")
	})

	t.Run("reply to comment", func(t *testing.T) {
		refreshed := &Post{Id: PostId("p1"), Author: student, Comments: []*comment.Comment{}}
		mockRepo.EXPECT().
			AddComment(gomock.Any(), PostId("p1"), student, "same", comment.CommentId("c1")).
			Return("new-reply-id", nil)
		mockRepo.EXPECT().
			GetById(gomock.Any(), PostId("p1")).
			Return(refreshed, nil)

		w := httptest.NewRecorder()
		ph.AddComment(w, authRequest("POST", "/api/post/p1/comments",
			`{"content": "same", "replyTo": "c1"}`, student, map[string]string{"post_id": "p1"}))

		require.Equal(t, http.StatusCreated, w.Result().StatusCode)
		assert.Contains(t, w.Body.String(), "new-reply-id")
	})

	t.Run("empty content", func(t *testing.T) {
		mockRepo.EXPECT().
			AddComment(gomock.Any(), PostId("p1"), student, "  ", comment.CommentId(``)).
			Return("", fmt.Errorf("post: content must not be empty: %w", apperr.ErrValidation))

		w := httptest.NewRecorder()
		ph.AddComment(w, authRequest("POST", "/api/post/p1/comments",
			`{"content": "  "}`, student, map[string]string{"post_id": "p1"}))

		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		ph.AddComment(w, authRequest("POST", "/api/post/p1/comments",
			`{"content": "hi"}`, nil, map[string]string{"post_id": "p1"}))

		assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
	})
}

func TestDeleteHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := NewMockIPostRepo(ctrl)
	mockFiles := NewMockIFileStorage(ctrl)
	ph := NewPostHandler(mockRepo, mockFiles)

	owned := &Post{Id: PostId("p1"), Author: student}

	t.Run("owner deletes", func(t *testing.T) {
		mockRepo.EXPECT().GetById(gomock.Any(), PostId("p1")).Return(owned, nil)
		mockRepo.EXPECT().Delete(gomock.Any(), PostId("p1")).Return(nil)
		mockFiles.EXPECT().Remove()

		w := httptest.NewRecorder()
		ph.Delete(w, authRequest("DELETE", "/api/post/p1", "", student,
			map[string]string{"post_id": "p1"}))

		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	})

	t.Run("moderator deletes someone else's post", func(t *testing.T) {
		mockRepo.EXPECT().GetById(gomock.Any(), PostId("p1")).Return(owned, nil)
		mockRepo.EXPECT().Delete(gomock.Any(), PostId("p1")).Return(nil)
		mockFiles.EXPECT().Remove()

		w := httptest.NewRecorder()
		ph.Delete(w, authRequest("DELETE", "/api/post/p1", "", moderator,
			map[string]string{"post_id": "p1"}))

		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	})

	t.Run("stranger is rejected", func(t *testing.T) {
		stranger := &user.User{Id: "u9", Username: "noone"}
		mockRepo.EXPECT().GetById(gomock.Any(), PostId("p1")).Return(owned, nil)

		w := httptest.NewRecorder()
		ph.Delete(w, authRequest("DELETE", "/api/post/p1", "", stranger,
			map[string]string{"post_id": "p1"}))

		assert.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	})
}

func TestTogglePinHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := NewMockIPostRepo(ctrl)
	ph := NewPostHandler(mockRepo, NewMockIFileStorage(ctrl))

	t.Run("author toggles", func(t *testing.T) {
		mockRepo.EXPECT().
			TogglePin(gomock.Any(), PostId("p1"), comment.CommentId("c1"), student).
			Return(true, nil)

		w := httptest.NewRecorder()
		ph.TogglePin(w, authRequest("POST", "/api/post/p1/comments/c1/pin", "", student,
			map[string]string{"post_id": "p1", "comment_id": "c1"}))

		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Contains(t, w.Body.String(), `"pinned":true`)
	})

	t.Run("non-author is rejected", func(t *testing.T) {
		mockRepo.EXPECT().
			TogglePin(gomock.Any(), PostId("p1"), comment.CommentId("c1"), student).
			Return(false, fmt.Errorf("post/repo: only the comment author can pin it: %w", apperr.ErrUnauthorized))

		w := httptest.NewRecorder()
		ph.TogglePin(w, authRequest("POST", "/api/post/p1/comments/c1/pin", "", student,
			map[string]string{"post_id": "p1", "comment_id": "c1"}))

		assert.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	})
}

func TestModerationHandlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := NewMockIPostRepo(ctrl)
	ph := NewPostHandler(mockRepo, NewMockIFileStorage(ctrl))

	t.Run("approve as moderator", func(t *testing.T) {
		mockRepo.EXPECT().SetApproved(gomock.Any(), PostId("p1"), true).Return(nil)

		w := httptest.NewRecorder()
		ph.Approve(w, authRequest("POST", "/api/moderation/post/p1/approve", "", moderator,
			map[string]string{"post_id": "p1"}))

		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	})

	t.Run("hide as moderator", func(t *testing.T) {
		mockRepo.EXPECT().SetVisible(gomock.Any(), PostId("p1"), false).Return(nil)

		w := httptest.NewRecorder()
		ph.Hide(w, authRequest("POST", "/api/moderation/post/p1/hide", "", moderator,
			map[string]string{"post_id": "p1"}))

		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	})

	t.Run("student may not moderate", func(t *testing.T) {
		w := httptest.NewRecorder()
		ph.Approve(w, authRequest("POST", "/api/moderation/post/p1/approve", "", student,
			map[string]string{"post_id": "p1"}))

		assert.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	})

	t.Run("anonymous may not moderate", func(t *testing.T) {
		w := httptest.NewRecorder()
		ph.Pending(w, authRequest("GET", "/api/moderation/posts", "", nil, nil))

		assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
	})
}

func TestGetHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := NewMockIPostRepo(ctrl)
	ph := NewPostHandler(mockRepo, NewMockIFileStorage(ctrl))

	t.Run("found", func(t *testing.T) {
		p := &Post{Id: PostId("p1"), Author: student, LikedBy: likes.Set{"u2"}}
		mockRepo.EXPECT().GetById(gomock.Any(), PostId("p1")).Return(p, nil)

		w := httptest.NewRecorder()
		ph.Get(w, authRequest("GET", "/api/post/p1", "", nil,
			map[string]string{"post_id": "p1"}))

		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Contains(t, w.Body.String(), `"id":"p1"`)
	})

	t.Run("missing", func(t *testing.T) {
		mockRepo.EXPECT().
			GetById(gomock.Any(), PostId("nope")).
			Return(nil, fmt.Errorf("post/repo: post nope: %w", apperr.ErrNotFound))

		w := httptest.NewRecorder()
		ph.Get(w, authRequest("GET", "/api/post/nope", "", nil,
			map[string]string{"post_id": "nope"}))

		assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
	})
}
