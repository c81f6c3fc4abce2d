package comment

import (
	"sort"
	"time"

	"tathya/pkg/likes"
	"tathya/pkg/user"
)

type (
	CommentId string
	ReplyId   string
)

// Comment is a top-level node under a post. Replies nest exactly one
// level below it; a Reply cannot have replies of its own.
type Comment struct {
	Id      CommentId  `json:"id"`
	Author  *user.User `json:"author"`
	Created time.Time  `json:"created"`
	Body    string     `json:"body"`
	LikedBy likes.Set  `json:"likedBy"`
	Pinned  bool       `json:"pinned"`
	Replies []*Reply   `json:"replies"`
}

type Reply struct {
	Id      ReplyId    `json:"id"`
	Author  *user.User `json:"author"`
	Created time.Time  `json:"created"`
	Body    string     `json:"body"`
	LikedBy likes.Set  `json:"likedBy"`
}

// SortForDisplay orders comments for rendering: pinned ones first, then
// newest-first within each partition. Storage keeps insertion order, so
// the sort works on a fresh slice and never mutates the aggregate.
func SortForDisplay(comments []*Comment) []*Comment {
	ordered := make([]*Comment, len(comments))
	copy(ordered, comments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Pinned != ordered[j].Pinned {
			return ordered[i].Pinned
		}
		return ordered[i].Created.After(ordered[j].Created)
	})
	return ordered
}
