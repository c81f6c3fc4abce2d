package post

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tathya/pkg/apperr"
	"tathya/pkg/comment"
	"tathya/pkg/likes"
	"tathya/pkg/user"
)

// Target addresses a likeable node inside the aggregate: the zero value
// means the post itself, CommentId alone a top-level comment, both ids a
// reply. There is no deeper level to address.
type Target struct {
	CommentId comment.CommentId
	ReplyId   comment.ReplyId
}

var PostTarget = Target{}

func CommentTarget(id comment.CommentId) Target {
	return Target{CommentId: id}
}

func ReplyTarget(cid comment.CommentId, rid comment.ReplyId) Target {
	return Target{CommentId: cid, ReplyId: rid}
}

func (p *Post) FindComment(id comment.CommentId) (*comment.Comment, bool) {
	for _, c := range p.Comments {
		if c.Id == id {
			return c, true
		}
	}
	return nil, false
}

func (p *Post) FindReply(cid comment.CommentId, rid comment.ReplyId) (*comment.Reply, bool) {
	c, ok := p.FindComment(cid)
	if !ok {
		return nil, false
	}
	for _, r := range c.Replies {
		if r.Id == rid {
			return r, true
		}
	}
	return nil, false
}

// LikeSet resolves the like set the target addresses.
func (p *Post) LikeSet(t Target) (likes.Set, error) {
	switch {
	case t.CommentId == ``:
		return p.LikedBy, nil
	case t.ReplyId == ``:
		c, ok := p.FindComment(t.CommentId)
		if !ok {
			return nil, fmt.Errorf("post: comment %s: %w", t.CommentId, apperr.ErrNotFound)
		}
		return c.LikedBy, nil
	default:
		r, ok := p.FindReply(t.CommentId, t.ReplyId)
		if !ok {
			return nil, fmt.Errorf("post: reply %s: %w", t.ReplyId, apperr.ErrNotFound)
		}
		return r.LikedBy, nil
	}
}

// ToggleLike applies the like toggle to the in-memory aggregate and
// returns the new like count. The repo persists the same rule through
// atomic array updates; clients run this copy for optimistic updates, so
// predicted state always matches what the server will store.
func (p *Post) ToggleLike(t Target, userId string) (int, error) {
	if userId == "" {
		return 0, fmt.Errorf("post: like requires a user: %w", apperr.ErrUnauthenticated)
	}

	set, err := p.LikeSet(t)
	if err != nil {
		return 0, err
	}
	newSet, _ := likes.Toggle(set, userId)

	switch {
	case t.CommentId == ``:
		p.LikedBy = newSet
	case t.ReplyId == ``:
		c, _ := p.FindComment(t.CommentId)
		c.LikedBy = newSet
	default:
		r, _ := p.FindReply(t.CommentId, t.ReplyId)
		r.LikedBy = newSet
	}
	p.Updated = time.Now()

	return likes.Count(newSet), nil
}

// ValidateContent rejects empty or whitespace-only bodies.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("post: content must not be empty: %w", apperr.ErrValidation)
	}
	return nil
}

func NewComment(author *user.User, content string) *comment.Comment {
	return &comment.Comment{
		Id:      comment.CommentId(uuid.NewString()),
		Author:  author,
		Created: time.Now(),
		Body:    content,
		LikedBy: likes.Set{},
		Replies: []*comment.Reply{},
	}
}

func NewReply(author *user.User, content string) *comment.Reply {
	return &comment.Reply{
		Id:      comment.ReplyId(uuid.NewString()),
		Author:  author,
		Created: time.Now(),
		Body:    content,
		LikedBy: likes.Set{},
	}
}

// AddNode appends a top-level comment, or a reply when parentId is set.
// Same in-memory mirror as ToggleLike: the repo runs the persistent
// twin of this via $push. Replies can never be parents, so a third
// level is not producible.
func (p *Post) AddNode(author *user.User, content string, parentId comment.CommentId) (string, error) {
	if err := ValidateContent(content); err != nil {
		return "", err
	}

	if parentId == `` {
		c := NewComment(author, content)
		p.Comments = append(p.Comments, c)
		p.Updated = time.Now()
		return string(c.Id), nil
	}

	parent, ok := p.FindComment(parentId)
	if !ok {
		return "", fmt.Errorf("post: parent comment %s: %w", parentId, apperr.ErrNotFound)
	}
	r := NewReply(author, content)
	parent.Replies = append(parent.Replies, r)
	p.Updated = time.Now()
	return string(r.Id), nil
}

// ViewFor prepares the aggregate for a response to the given viewer
// (nil for anonymous): comments come out in display order and the
// author of an anonymous post is withheld from everyone but the owner
// and moderators. The stored aggregate is not modified.
func (p *Post) ViewFor(viewer *user.User) *Post {
	view := *p
	view.Comments = comment.SortForDisplay(p.Comments)
	if p.IsAnonymous && !p.IsOwnedBy(viewer) && !viewer.IsModerator() {
		view.Author = nil
	}
	return &view
}
