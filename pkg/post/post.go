package post

import (
	"time"

	"tathya/pkg/comment"
	"tathya/pkg/files"
	"tathya/pkg/likes"
	"tathya/pkg/user"
)

type PostId string

// Post is the whole aggregate: the post itself plus its embedded
// comments and their replies. It is stored as a single document and is
// the unit of mutation; sub-document updates go through atomic array
// operators keyed by comment/reply id.
type Post struct {
	Id          PostId             `json:"id"`
	Author      *user.User         `json:"author"`
	Title       string             `json:"title"`
	Body        string             `json:"body"`
	Attachments []files.Attachment `json:"attachments"`
	LikedBy     likes.Set          `json:"likedBy"`
	Comments    []*comment.Comment `json:"comments"`

	// IsAnonymous hides the author from other users; ownership checks
	// still use the stored author.
	IsAnonymous bool `json:"isAnonymous"`

	// A post enters the public feed only when both flags are set:
	// moderators approve new posts and may hide them later.
	IsVisible bool `json:"isVisible"`
	Approved  bool `json:"approved"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

func (p *Post) IsOwnedBy(u *user.User) bool {
	return u != nil && p.Author != nil && p.Author.Id == u.Id
}
