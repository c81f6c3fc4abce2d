package post

import (
	"context"
	"fmt"
	"testing"

	gomock "github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"tathya/pkg/apperr"
	"tathya/pkg/comment"
	"tathya/pkg/likes"
	"tathya/pkg/user"
)

// bumpsUpdated matches any update document that touches the post's
// updated stamp via $set.
type bumpsUpdated struct{}

func (bumpsUpdated) Matches(x interface{}) bool {
	update, ok := x.(bson.M)
	if !ok {
		return false
	}
	set, ok := update["$set"].(bson.M)
	if !ok {
		return false
	}
	_, ok = set["updated"]
	return ok
}

func (bumpsUpdated) String() string {
	return "an update document bumping the updated stamp"
}

func repoTestPost() *Post {
	p := &Post{
		Id:      PostId("p1"),
		Author:  &user.User{Id: "author-1", Username: "asha"},
		Title:   "mess food quality",
		Body:    "still cold",
		LikedBy: likes.Set{},
	}
	c := NewComment(&user.User{Id: "commenter-1"}, "agreed")
	c.Id = comment.CommentId("c1")
	p.Comments = []*comment.Comment{c}
	return p
}

func TestPostAdd(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()

	mockMongoColl := NewMockIMongoCollection(ctrl)
	mockInsertOneResult := NewMockIMongoInsertOneResult(ctrl)

	repo := &Repo{
		posts: mockMongoColl,
	}

	testPost := &Post{Id: PostId("1")}

	t.Run("success", func(t *testing.T) {
		mockMongoColl.EXPECT().
			InsertOne(ctx, gomock.Any()).
			Return(mockInsertOneResult, nil)

		insertedPostId, err := repo.Add(context.Background(), testPost)
		if err != nil {
			t.Errorf("failed success test %v", err)
			return
		}
		assert.Nil(t, err)
		assert.Equal(t, testPost.Id, insertedPostId)
	})

	t.Run("insert error", func(t *testing.T) {
		expectedErr := fmt.Errorf("insert_failed")
		mockMongoColl.EXPECT().
			InsertOne(ctx, gomock.Any()).
			Return(nil, expectedErr)

		insertedPostId, err := repo.Add(context.Background(), &Post{})
		assert.Equal(t, insertedPostId, PostId(``))
		assert.NotNil(t, err)
	})
}

func TestGetByIdNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockMongoColl := NewMockIMongoCollection(ctrl)
	mockSingleResult := NewMockIMongoSingleResult(ctrl)
	repo := &Repo{posts: mockMongoColl}

	mockMongoColl.EXPECT().FindOne(ctx, gomock.Any()).Return(mockSingleResult)
	mockSingleResult.EXPECT().Decode(gomock.Any()).Return(mongo.ErrNoDocuments)

	_, err := repo.GetById(ctx, PostId("missing"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestToggleLike(t *testing.T) {
	ctx := context.Background()

	expectGetById := func(mockColl *MockIMongoCollection, ctrl *gomock.Controller, p Post) {
		sr := NewMockIMongoSingleResult(ctrl)
		mockColl.EXPECT().FindOne(ctx, gomock.Any()).Return(sr)
		sr.EXPECT().Decode(gomock.Any()).SetArg(0, p).Return(nil)
	}

	t.Run("like added when user not a member", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		before := repoTestPost()
		after := repoTestPost()
		after.LikedBy = likes.Set{"u1"}

		expectGetById(mockColl, ctrl, *before)

		pullRes := NewMockIMongoUpdateResult(ctrl)
		mockColl.EXPECT().
			UpdateOne(ctx, gomock.Any(), bumpsUpdated{}, gomock.Any()).
			Return(pullRes, nil)
		pullRes.EXPECT().MatchedCount().Return(int64(0))

		addRes := NewMockIMongoUpdateResult(ctrl)
		mockColl.EXPECT().
			UpdateOne(ctx, gomock.Any(), bumpsUpdated{}, gomock.Any()).
			Return(addRes, nil)

		expectGetById(mockColl, ctrl, *after)

		count, err := repo.ToggleLike(ctx, before.Id, PostTarget, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("like removed when user is a member", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		before := repoTestPost()
		before.LikedBy = likes.Set{"u1", "u2"}
		after := repoTestPost()
		after.LikedBy = likes.Set{"u2"}

		expectGetById(mockColl, ctrl, *before)

		pullRes := NewMockIMongoUpdateResult(ctrl)
		mockColl.EXPECT().
			UpdateOne(ctx, gomock.Any(), bumpsUpdated{}, gomock.Any()).
			Return(pullRes, nil)
		pullRes.EXPECT().MatchedCount().Return(int64(1))

		expectGetById(mockColl, ctrl, *after)

		count, err := repo.ToggleLike(ctx, before.Id, PostTarget, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("unknown comment target", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		expectGetById(mockColl, ctrl, *repoTestPost())

		_, err := repo.ToggleLike(ctx, PostId("p1"), CommentTarget("missing"), "u1")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("no user id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		_, err := repo.ToggleLike(ctx, PostId("p1"), PostTarget, "")
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	})
}

func TestAddComment(t *testing.T) {
	ctx := context.Background()
	author := &user.User{Id: "u1", Username: "mira"}

	t.Run("top-level comment", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		updRes := NewMockIMongoUpdateResult(ctrl)
		mockColl.EXPECT().
			UpdateOne(ctx, gomock.Any(), bumpsUpdated{}).
			Return(updRes, nil)
		updRes.EXPECT().MatchedCount().Return(int64(1))

		id, err := repo.AddComment(ctx, PostId("p1"), author, "new comment", ``)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	})

	t.Run("reply under parent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		updRes := NewMockIMongoUpdateResult(ctrl)
		mockColl.EXPECT().
			UpdateOne(ctx, gomock.Any(), bumpsUpdated{}).
			Return(updRes, nil)
		updRes.EXPECT().MatchedCount().Return(int64(1))

		id, err := repo.AddComment(ctx, PostId("p1"), author, "a reply", comment.CommentId("c1"))
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	})

	t.Run("unknown parent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		updRes := NewMockIMongoUpdateResult(ctrl)
		mockColl.EXPECT().
			UpdateOne(ctx, gomock.Any(), gomock.Any()).
			Return(updRes, nil)
		updRes.EXPECT().MatchedCount().Return(int64(0))

		_, err := repo.AddComment(ctx, PostId("p1"), author, "a reply", comment.CommentId("missing"))
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("empty content skips the DB entirely", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		_, err := repo.AddComment(ctx, PostId("p1"), author, "   ", ``)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestTogglePin(t *testing.T) {
	ctx := context.Background()

	t.Run("author pins own comment", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		p := repoTestPost()
		sr := NewMockIMongoSingleResult(ctrl)
		mockColl.EXPECT().FindOne(ctx, gomock.Any()).Return(sr)
		sr.EXPECT().Decode(gomock.Any()).SetArg(0, *p).Return(nil)

		updRes := NewMockIMongoUpdateResult(ctrl)
		mockColl.EXPECT().
			UpdateOne(ctx, gomock.Any(), bumpsUpdated{}).
			Return(updRes, nil)

		pinned, err := repo.TogglePin(ctx, p.Id, comment.CommentId("c1"), &user.User{Id: "commenter-1"})
		require.NoError(t, err)
		assert.True(t, pinned)
	})

	t.Run("non-author may not pin", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		p := repoTestPost()
		sr := NewMockIMongoSingleResult(ctrl)
		mockColl.EXPECT().FindOne(ctx, gomock.Any()).Return(sr)
		sr.EXPECT().Decode(gomock.Any()).SetArg(0, *p).Return(nil)

		_, err := repo.TogglePin(ctx, p.Id, comment.CommentId("c1"), &user.User{Id: "someone-else"})
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("unknown comment", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		repo := &Repo{posts: mockColl}

		p := repoTestPost()
		sr := NewMockIMongoSingleResult(ctrl)
		mockColl.EXPECT().FindOne(ctx, gomock.Any()).Return(sr)
		sr.EXPECT().Decode(gomock.Any()).SetArg(0, *p).Return(nil)

		_, err := repo.TogglePin(ctx, p.Id, comment.CommentId("missing"), &user.User{Id: "commenter-1"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestListRecent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockColl := NewMockIMongoCollection(ctrl)
	mockCursor := NewMockIMongoCursor(ctrl)
	repo := &Repo{posts: mockColl}

	expectedPosts := []*Post{
		{Id: PostId("1"), IsVisible: true, Approved: true},
		{Id: PostId("2"), IsVisible: true, Approved: true},
	}

	// The feed must query visible+approved only, for every viewer.
	feedFilter := bson.M{"isvisible": true, "approved": true}

	mockColl.EXPECT().
		CountDocuments(ctx, feedFilter).
		Return(int64(12), nil)
	mockColl.EXPECT().
		Find(ctx, feedFilter, gomock.Any()).
		Return(mockCursor, nil)
	mockCursor.EXPECT().
		All(ctx, gomock.AssignableToTypeOf(&expectedPosts)).
		SetArg(1, expectedPosts).
		Return(nil)
	mockCursor.EXPECT().Close(ctx).Return(nil)

	feed, err := repo.ListRecent(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, expectedPosts, feed.Items)
	assert.Equal(t, 2, feed.Page)
	assert.Equal(t, 2, feed.TotalPages)
	assert.Equal(t, int64(12), feed.TotalCount)
}

func TestListPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockColl := NewMockIMongoCollection(ctrl)
	mockCursor := NewMockIMongoCursor(ctrl)
	repo := &Repo{posts: mockColl}

	expectedPosts := []*Post{
		{Id: PostId("1"), IsVisible: true},
	}

	// The moderation queue keys on approval only: hidden posts still
	// show up there so moderators can re-review them.
	queueFilter := bson.M{"approved": false}

	mockColl.EXPECT().
		CountDocuments(ctx, queueFilter).
		Return(int64(1), nil)
	mockColl.EXPECT().
		Find(ctx, queueFilter, gomock.Any()).
		Return(mockCursor, nil)
	mockCursor.EXPECT().
		All(ctx, gomock.AssignableToTypeOf(&expectedPosts)).
		SetArg(1, expectedPosts).
		Return(nil)
	mockCursor.EXPECT().Close(ctx).Return(nil)

	feed, err := repo.ListPending(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, expectedPosts, feed.Items)
	assert.Equal(t, 1, feed.TotalPages)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		delRes := NewMockIMongoDeleteResult(ctrl)
		repo := &Repo{posts: mockColl}

		mockColl.EXPECT().DeleteOne(ctx, gomock.Any()).Return(delRes, nil)
		delRes.EXPECT().DeletedCount().Return(int64(1))

		assert.NoError(t, repo.Delete(ctx, PostId("p1")))
	})

	t.Run("missing post", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		delRes := NewMockIMongoDeleteResult(ctrl)
		repo := &Repo{posts: mockColl}

		mockColl.EXPECT().DeleteOne(ctx, gomock.Any()).Return(delRes, nil)
		delRes.EXPECT().DeletedCount().Return(int64(0))

		assert.ErrorIs(t, repo.Delete(ctx, PostId("missing")), apperr.ErrNotFound)
	})
}

func TestSetFlags(t *testing.T) {
	ctx := context.Background()

	t.Run("approve", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		updRes := NewMockIMongoUpdateResult(ctrl)
		repo := &Repo{posts: mockColl}

		mockColl.EXPECT().
			UpdateOne(ctx, bson.M{"id": PostId("p1")}, bumpsUpdated{}).
			Return(updRes, nil)
		updRes.EXPECT().MatchedCount().Return(int64(1))

		assert.NoError(t, repo.SetApproved(ctx, PostId("p1"), true))
	})

	t.Run("hide", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		updRes := NewMockIMongoUpdateResult(ctrl)
		repo := &Repo{posts: mockColl}

		mockColl.EXPECT().
			UpdateOne(ctx, bson.M{"id": PostId("p1")}, bumpsUpdated{}).
			Return(updRes, nil)
		updRes.EXPECT().MatchedCount().Return(int64(1))

		assert.NoError(t, repo.SetVisible(ctx, PostId("p1"), false))
	})

	t.Run("missing post", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		mockColl := NewMockIMongoCollection(ctrl)
		updRes := NewMockIMongoUpdateResult(ctrl)
		repo := &Repo{posts: mockColl}

		mockColl.EXPECT().
			UpdateOne(ctx, gomock.Any(), bumpsUpdated{}).
			Return(updRes, nil)
		updRes.EXPECT().MatchedCount().Return(int64(0))

		assert.ErrorIs(t, repo.SetApproved(ctx, PostId("missing"), true), apperr.ErrNotFound)
	})
}

func TestListByAuthor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockColl := NewMockIMongoCollection(ctrl)
	mockCursor := NewMockIMongoCursor(ctrl)
	repo := &Repo{posts: mockColl}

	username := "asha"
	expectedPosts := []*Post{
		{Id: PostId("1"), Author: &user.User{Username: username}},
		{Id: PostId("2"), Author: &user.User{Username: username}},
	}

	mockColl.EXPECT().
		Find(ctx, gomock.Any(), gomock.Any()).
		Return(mockCursor, nil)
	mockCursor.EXPECT().
		All(ctx, gomock.AssignableToTypeOf(&expectedPosts)).
		SetArg(1, expectedPosts).
		Return(nil)
	mockCursor.EXPECT().Close(ctx).Return(nil)

	posts, err := repo.ListByAuthor(ctx, username, true)
	require.NoError(t, err)
	assert.Equal(t, expectedPosts, posts)
}
