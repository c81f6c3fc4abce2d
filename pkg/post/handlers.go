package post

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"tathya/pkg/apperr"
	"tathya/pkg/comment"
	. "tathya/pkg/common"
	"tathya/pkg/files"
	"tathya/pkg/likes"
	"tathya/pkg/logger"
	"tathya/pkg/sessions"
	"tathya/pkg/user"
)

type IPostRepo interface {
	GetById(context.Context, PostId) (*Post, error)
	ListRecent(context.Context, int, int) (*Feed, error)
	ListPending(context.Context, int, int) (*Feed, error)
	ListByAuthor(context.Context, string, bool) ([]*Post, error)

	Add(context.Context, *Post) (PostId, error)
	Delete(context.Context, PostId) error

	ToggleLike(context.Context, PostId, Target, string) (int, error)
	AddComment(context.Context, PostId, *user.User, string, comment.CommentId) (string, error)
	TogglePin(context.Context, PostId, comment.CommentId, *user.User) (bool, error)

	SetApproved(context.Context, PostId, bool) error
	SetVisible(context.Context, PostId, bool) error
}

type IFileStorage interface {
	Save(*multipart.FileHeader) (files.Attachment, error)
	Remove(...files.Attachment)
}

type PostHandler struct {
	PostRepo IPostRepo
	Files    IFileStorage
}

func NewPostHandler(postRepo IPostRepo, storage IFileStorage) *PostHandler {
	return &PostHandler{
		PostRepo: postRepo,
		Files:    storage,
	}
}

const maxUploadBytes = 32 << 20

// List serves the public feed page requested via ?pageNumber=N.
func (ph *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	page, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))
	feed, err := ph.PostRepo.ListRecent(r.Context(), page, DefaultPageSize)
	if err != nil {
		logger.Log(r.Context()).Errorf("can't load feed from the repo: %v", err)
		WriteMsg(w, "failed loading posts", http.StatusInternalServerError)
		return
	}

	viewer, _ := sessions.GetAuthUser(r.Context())
	for i, p := range feed.Items {
		feed.Items[i] = p.ViewFor(viewer)
	}

	WriteRespJSON(w, feed)
}

func (ph *PostHandler) Add(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	author, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		logger.Log(r.Context()).Errorf("post/handlers: unauthenticated post create: %v", err)
		WriteErr(w, err, "sign in to create a post")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		logger.Log(r.Context()).Errorf("can't parse multipart form: %v", err)
		WriteMsg(w, "can't parse post form", http.StatusBadRequest)
		return
	}

	title := r.FormValue("title")
	body := r.FormValue("content")
	if err := ValidateContent(title); err != nil {
		WriteErr(w, err, "title must not be empty")
		return
	}
	if err := ValidateContent(body); err != nil {
		WriteErr(w, err, "content must not be empty")
		return
	}

	attachments := []files.Attachment{}
	for _, fh := range r.MultipartForm.File["attachments"] {
		att, err := ph.Files.Save(fh)
		if err != nil {
			logger.Log(r.Context()).Errorf("can't store attachment %s: %v", fh.Filename, err)
			ph.Files.Remove(attachments...)
			WriteMsg(w, "failed storing attachments", http.StatusInternalServerError)
			return
		}
		attachments = append(attachments, att)
	}

	now := time.Now()
	post := &Post{
		Id:          PostId(uuid.NewString()),
		Author:      author,
		Title:       title,
		Body:        body,
		Attachments: attachments,
		LikedBy:     likes.Set{},
		Comments:    []*comment.Comment{},
		IsAnonymous: r.FormValue("isAnonymous") == "true",
		IsVisible:   true,
		Approved:    false, // moderators approve posts into the feed
		Created:     now,
		Updated:     now,
	}

	if _, err := ph.PostRepo.Add(r.Context(), post); err != nil {
		logger.Log(r.Context()).Errorf("can't add post to the repo: %v", err)
		// All-or-nothing: a failed create keeps no attachment bytes.
		ph.Files.Remove(attachments...)
		WriteMsg(w, "failed adding post", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	WriteRespJSON(w, post.ViewFor(author))
}

func (ph *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	postId := PostId(mux.Vars(r)["post_id"])
	post, err := ph.PostRepo.GetById(r.Context(), postId)
	if err != nil {
		logger.Log(r.Context()).Errorf("can't get post with id %s: %v", postId, err)
		WriteErr(w, err, "post not found")
		return
	}

	viewer, _ := sessions.GetAuthUser(r.Context())
	WriteRespJSON(w, post.ViewFor(viewer))
}

func (ph *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	postId := PostId(mux.Vars(r)["post_id"])

	authUser, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		logger.Log(r.Context()).Errorf("unauthenticated post delete: %v", err)
		WriteErr(w, err, "sign in to delete a post")
		return
	}

	post, err := ph.PostRepo.GetById(r.Context(), postId)
	if err != nil {
		logger.Log(r.Context()).Errorf("can't find the post: %v", err)
		WriteErr(w, err, "post not found")
		return
	}

	if !post.IsOwnedBy(authUser) && !authUser.IsModerator() {
		logger.Log(r.Context()).Errorf("user %s may not delete post %s", authUser.Id, postId)
		WriteErr(w, apperr.ErrUnauthorized, "only the author or a moderator can remove the post")
		return
	}

	if err := ph.PostRepo.Delete(r.Context(), postId); err != nil {
		logger.Log(r.Context()).Errorf("can't remove post: %v", err)
		WriteErr(w, err, "removing post failed")
		return
	}

	ph.Files.Remove(post.Attachments...)
	WriteMsg(w, "success", http.StatusOK)
}

func (ph *PostHandler) LikePost(w http.ResponseWriter, r *http.Request) {
	ph.toggleLike(w, r, PostTarget)
}

func (ph *PostHandler) LikeComment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ph.toggleLike(w, r, CommentTarget(comment.CommentId(vars["comment_id"])))
}

func (ph *PostHandler) LikeReply(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ph.toggleLike(w, r, ReplyTarget(
		comment.CommentId(vars["comment_id"]),
		comment.ReplyId(vars["reply_id"]),
	))
}

func (ph *PostHandler) toggleLike(w http.ResponseWriter, r *http.Request, t Target) {
	w.Header().Set("Content-Type", "application/json")

	postId := PostId(mux.Vars(r)["post_id"])

	liker, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		logger.Log(r.Context()).Errorf("unauthenticated like toggle: %v", err)
		WriteErr(w, err, "sign in to like")
		return
	}

	count, err := ph.PostRepo.ToggleLike(r.Context(), postId, t, liker.Id)
	if err != nil {
		logger.Log(r.Context()).Errorf("can't toggle like on post %s: %v", postId, err)
		WriteErr(w, err, "like failed")
		return
	}

	WriteRespJSON(w, struct {
		Likes int `json:"likes"`
	}{count})
}

// AddComment appends a top-level comment, or a reply when the body
// carries replyTo (a top-level comment id).
func (ph *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	postId := PostId(mux.Vars(r)["post_id"])

	commenter, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		logger.Log(r.Context()).Errorf("unauthenticated comment: %v", err)
		WriteErr(w, err, "sign in to comment")
		return
	}

	in := struct {
		Content string `json:"content"`
		ReplyTo string `json:"replyTo"`
	}{}
	if err := ParseReqBody(r.Body, &in); err != nil {
		logger.Log(r.Context()).Errorf("can't parse comment body: %v", err)
		WriteMsg(w, "failed parsing comment body", http.StatusBadRequest)
		return
	}

	newId, err := ph.PostRepo.AddComment(r.Context(), postId, commenter, in.Content, comment.CommentId(in.ReplyTo))
	if err != nil {
		logger.Log(r.Context()).Errorf("can't add comment to post %s: %v", postId, err)
		WriteErr(w, err, "adding comment failed")
		return
	}

	// The client replaces its optimistic state with this server truth.
	refreshed, err := ph.PostRepo.GetById(r.Context(), postId)
	if err != nil {
		logger.Log(r.Context()).Errorf("can't reload post %s: %v", postId, err)
		WriteErr(w, err, "post not found")
		return
	}

	w.WriteHeader(http.StatusCreated)
	WriteRespJSON(w, struct {
		Id   string `json:"id"`
		Post *Post  `json:"post"`
	}{newId, refreshed.ViewFor(commenter)})
}

func (ph *PostHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	vars := mux.Vars(r)
	postId := PostId(vars["post_id"])
	commentId := comment.CommentId(vars["comment_id"])

	requester, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		logger.Log(r.Context()).Errorf("unauthenticated pin toggle: %v", err)
		WriteErr(w, err, "sign in to pin")
		return
	}

	pinned, err := ph.PostRepo.TogglePin(r.Context(), postId, commentId, requester)
	if err != nil {
		logger.Log(r.Context()).Errorf("can't toggle pin on comment %s: %v", commentId, err)
		WriteErr(w, err, "pin failed")
		return
	}

	WriteRespJSON(w, struct {
		Pinned bool `json:"pinned"`
	}{pinned})
}

// Pending is the moderation queue: posts awaiting approval.
func (ph *PostHandler) Pending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	moderator, err := ph.requireModerator(w, r)
	if err != nil {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))
	feed, err := ph.PostRepo.ListPending(r.Context(), page, DefaultPageSize)
	if err != nil {
		logger.Log(r.Context()).Errorf("can't load moderation queue: %v", err)
		WriteMsg(w, "failed loading pending posts", http.StatusInternalServerError)
		return
	}

	for i, p := range feed.Items {
		feed.Items[i] = p.ViewFor(moderator)
	}
	WriteRespJSON(w, feed)
}

func (ph *PostHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ph.setModerationFlag(w, r, func(ctx context.Context, id PostId) error {
		return ph.PostRepo.SetApproved(ctx, id, true)
	})
}

func (ph *PostHandler) Hide(w http.ResponseWriter, r *http.Request) {
	ph.setModerationFlag(w, r, func(ctx context.Context, id PostId) error {
		return ph.PostRepo.SetVisible(ctx, id, false)
	})
}

func (ph *PostHandler) setModerationFlag(w http.ResponseWriter, r *http.Request, op func(context.Context, PostId) error) {
	w.Header().Set("Content-Type", "application/json")

	if _, err := ph.requireModerator(w, r); err != nil {
		return
	}

	postId := PostId(mux.Vars(r)["post_id"])
	if err := op(r.Context(), postId); err != nil {
		logger.Log(r.Context()).Errorf("moderation update failed for post %s: %v", postId, err)
		WriteErr(w, err, "moderation update failed")
		return
	}

	WriteMsg(w, "success", http.StatusOK)
}

func (ph *PostHandler) requireModerator(w http.ResponseWriter, r *http.Request) (*user.User, error) {
	u, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		logger.Log(r.Context()).Errorf("unauthenticated moderation request: %v", err)
		WriteErr(w, err, "sign in required")
		return nil, err
	}
	if !u.IsModerator() {
		logger.Log(r.Context()).Errorf("user %s is not a moderator", u.Id)
		WriteErr(w, apperr.ErrUnauthorized, "moderator role required")
		return nil, apperr.ErrUnauthorized
	}
	return u, nil
}

// GetByUser lists a user's posts. The owner (and moderators) see all of
// them; everyone else only what the public feed would show.
func (ph *PostHandler) GetByUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	username := mux.Vars(r)["username"]
	viewer, _ := sessions.GetAuthUser(r.Context())

	publicOnly := viewer == nil || (viewer.Username != username && !viewer.IsModerator())
	userPosts, err := ph.PostRepo.ListByAuthor(r.Context(), username, publicOnly)
	if err != nil {
		logger.Log(r.Context()).Errorf("can't load user `%s` posts from the repo: %v", username, err)
		WriteMsg(w, "failed loading user posts", http.StatusInternalServerError)
		return
	}

	views := make([]*Post, len(userPosts))
	for i, p := range userPosts {
		views[i] = p.ViewFor(viewer)
	}
	WriteRespJSON(w, views)
}
