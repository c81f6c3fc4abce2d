package post

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tathya/pkg/apperr"
	"tathya/pkg/comment"
	"tathya/pkg/likes"
	"tathya/pkg/user"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// Feed is one page of the public feed.
type Feed struct {
	Items      []*Post `json:"items"`
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
	TotalCount int64   `json:"totalCount"`
}

type Repo struct {
	posts IMongoCollection
}

func NewPostRepo(postsCol *mongo.Collection) *Repo {
	posts := &MongoCollection{
		Coll: postsCol,
	}
	return &Repo{
		posts: posts,
	}
}

func (r *Repo) Add(ctx context.Context, p *Post) (PostId, error) {
	_, err := r.posts.InsertOne(ctx, p)
	if err != nil {
		return PostId(``), fmt.Errorf("post/repo: failed inserting a post: %w", err)
	}
	return PostId(p.Id), nil
}

func (r *Repo) Delete(ctx context.Context, id PostId) error {
	res, err := r.posts.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("post/repo: failed deleting post: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("post/repo: post %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *Repo) GetById(ctx context.Context, id PostId) (*Post, error) {
	post := new(Post)
	err := r.posts.FindOne(ctx, bson.M{"id": id}).Decode(post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("post/repo: post %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("post/repo: failed loading post: %w", err)
	}
	return post, nil
}

// ListRecent serves the public feed: visible, approved posts, newest
// first, offset-paginated. Pages are not snapshot-stable under
// concurrent inserts, which is accepted.
func (r *Repo) ListRecent(ctx context.Context, page, pageSize int) (*Feed, error) {
	filter := bson.M{"isvisible": true, "approved": true}
	return r.listPage(ctx, filter, page, pageSize, -1)
}

// ListPending is the moderation queue: everything not yet approved,
// oldest first so moderators see the longest-waiting posts on top.
func (r *Repo) ListPending(ctx context.Context, page, pageSize int) (*Feed, error) {
	return r.listPage(ctx, bson.M{"approved": false}, page, pageSize, 1)
}

// ListByAuthor returns the author's posts. With publicOnly set it keeps
// only what the feed would show; owners and moderators pass false to
// see unapproved and hidden posts too.
func (r *Repo) ListByAuthor(ctx context.Context, username string, publicOnly bool) ([]*Post, error) {
	filter := bson.M{"author.username": username}
	if publicOnly {
		filter["isvisible"] = true
		filter["approved"] = true
	}

	opts := options.Find().SetSort(bson.D{{Key: "created", Value: -1}})
	cursor, err := r.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("post/repo: failed finding posts: %w", err)
	}
	defer cursor.Close(ctx)

	userPosts := []*Post{}
	if err := cursor.All(ctx, &userPosts); err != nil {
		return nil, fmt.Errorf("post/repo: failed getting posts from cursor: %w", err)
	}
	return userPosts, nil
}

func (r *Repo) listPage(ctx context.Context, filter bson.M, page, pageSize, sortDir int) (*Feed, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	total, err := r.posts.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("post/repo: failed counting posts: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created", Value: sortDir}}).
		SetSkip(int64(pageSize * (page - 1))).
		SetLimit(int64(pageSize))
	cursor, err := r.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("post/repo: failed finding posts: %w", err)
	}
	defer cursor.Close(ctx)

	posts := []*Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("post/repo: failed getting posts from cursor: %w", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &Feed{
		Items:      posts,
		Page:       page,
		TotalPages: totalPages,
		TotalCount: total,
	}, nil
}

// ToggleLike flips the user's membership in the target's like set and
// returns the resulting count.
//
// The toggle itself never reads-then-writes the set: the first update
// is a $pull whose filter requires membership, so MatchedCount tells
// whether the user was in the set; on zero matches an $addToSet runs
// instead. Both are single atomic document updates, so concurrent
// toggles by different users cannot lose each other.
func (r *Repo) ToggleLike(ctx context.Context, postId PostId, t Target, userId string) (int, error) {
	if userId == "" {
		return 0, fmt.Errorf("post/repo: like requires a user: %w", apperr.ErrUnauthenticated)
	}

	// Existence check up front so a missing comment/reply comes back as
	// not-found instead of a silent no-op.
	current, err := r.GetById(ctx, postId)
	if err != nil {
		return 0, err
	}
	if _, err := current.LikeSet(t); err != nil {
		return 0, err
	}

	now := time.Now()
	field, memberFilter, arrayFilters := likeTarget(postId, t, userId)

	opts := options.Update()
	if len(arrayFilters) > 0 {
		opts.SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})
	}

	pull := bson.M{
		"$pull": bson.M{field: userId},
		"$set":  bson.M{"updated": now},
	}
	res, err := r.posts.UpdateOne(ctx, memberFilter, pull, opts)
	if err != nil {
		return 0, fmt.Errorf("post/repo: failed removing like: %w", err)
	}

	if res.MatchedCount() == 0 {
		add := bson.M{
			"$addToSet": bson.M{field: userId},
			"$set":      bson.M{"updated": now},
		}
		if _, err := r.posts.UpdateOne(ctx, bson.M{"id": postId}, add, opts); err != nil {
			return 0, fmt.Errorf("post/repo: failed adding like: %w", err)
		}
	}

	fresh, err := r.GetById(ctx, postId)
	if err != nil {
		return 0, err
	}
	set, err := fresh.LikeSet(t)
	if err != nil {
		return 0, err
	}
	return likes.Count(set), nil
}

// likeTarget maps a target path onto the likedby field to update, the
// filter that additionally requires the user's membership, and the
// array filters identifying the sub-document.
func likeTarget(postId PostId, t Target, userId string) (string, bson.M, []interface{}) {
	switch {
	case t.CommentId == ``:
		return "likedby",
			bson.M{"id": postId, "likedby": userId},
			nil
	case t.ReplyId == ``:
		return "comments.$[c].likedby",
			bson.M{"id": postId, "comments": bson.M{"$elemMatch": bson.M{
				"id":      t.CommentId,
				"likedby": userId,
			}}},
			[]interface{}{bson.M{"c.id": t.CommentId}}
	default:
		return "comments.$[c].replies.$[r].likedby",
			bson.M{"id": postId, "comments": bson.M{"$elemMatch": bson.M{
				"id": t.CommentId,
				"replies": bson.M{"$elemMatch": bson.M{
					"id":      t.ReplyId,
					"likedby": userId,
				}},
			}}},
			[]interface{}{bson.M{"c.id": t.CommentId}, bson.M{"r.id": t.ReplyId}}
	}
}

// AddComment appends a top-level comment, or a reply when parentId is
// set, and returns the new node's id. The reply path only ever matches
// top-level comment ids, so replies cannot gain replies.
func (r *Repo) AddComment(ctx context.Context, postId PostId, author *user.User, content string, parentId comment.CommentId) (string, error) {
	if err := ValidateContent(content); err != nil {
		return "", err
	}
	now := time.Now()

	if parentId == `` {
		cmt := NewComment(author, content)
		update := bson.M{
			"$push": bson.M{"comments": cmt},
			"$set":  bson.M{"updated": now},
		}
		res, err := r.posts.UpdateOne(ctx, bson.M{"id": postId}, update)
		if err != nil {
			return "", fmt.Errorf("post/repo: failed adding comment: %w", err)
		}
		if res.MatchedCount() == 0 {
			return "", fmt.Errorf("post/repo: post %s: %w", postId, apperr.ErrNotFound)
		}
		return string(cmt.Id), nil
	}

	reply := NewReply(author, content)
	filter := bson.M{"id": postId, "comments.id": parentId}
	update := bson.M{
		"$push": bson.M{"comments.$.replies": reply},
		"$set":  bson.M{"updated": now},
	}
	res, err := r.posts.UpdateOne(ctx, filter, update)
	if err != nil {
		return "", fmt.Errorf("post/repo: failed adding reply: %w", err)
	}
	if res.MatchedCount() == 0 {
		return "", fmt.Errorf("post/repo: parent comment %s: %w", parentId, apperr.ErrNotFound)
	}
	return string(reply.Id), nil
}

// TogglePin flips the pinned flag of a comment. Only the comment's
// author may do it; pinning changes display order only.
func (r *Repo) TogglePin(ctx context.Context, postId PostId, commentId comment.CommentId, requester *user.User) (bool, error) {
	if requester == nil {
		return false, fmt.Errorf("post/repo: pin requires a user: %w", apperr.ErrUnauthenticated)
	}

	post, err := r.GetById(ctx, postId)
	if err != nil {
		return false, err
	}
	cmt, ok := post.FindComment(commentId)
	if !ok {
		return false, fmt.Errorf("post/repo: comment %s: %w", commentId, apperr.ErrNotFound)
	}
	if cmt.Author == nil || cmt.Author.Id != requester.Id {
		return false, fmt.Errorf("post/repo: only the comment author can pin it: %w", apperr.ErrUnauthorized)
	}

	newState := !cmt.Pinned
	filter := bson.M{"id": postId, "comments.id": commentId}
	update := bson.M{"$set": bson.M{"comments.$.pinned": newState, "updated": time.Now()}}
	if _, err := r.posts.UpdateOne(ctx, filter, update); err != nil {
		return false, fmt.Errorf("post/repo: failed pinning comment: %w", err)
	}
	return newState, nil
}

func (r *Repo) SetApproved(ctx context.Context, postId PostId, approved bool) error {
	return r.setFlag(ctx, postId, "approved", approved)
}

func (r *Repo) SetVisible(ctx context.Context, postId PostId, visible bool) error {
	return r.setFlag(ctx, postId, "isvisible", visible)
}

func (r *Repo) setFlag(ctx context.Context, postId PostId, field string, value bool) error {
	update := bson.M{"$set": bson.M{field: value, "updated": time.Now()}}
	res, err := r.posts.UpdateOne(ctx, bson.M{"id": postId}, update)
	if err != nil {
		return fmt.Errorf("post/repo: failed setting %s: %w", field, err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("post/repo: post %s: %w", postId, apperr.ErrNotFound)
	}
	return nil
}
