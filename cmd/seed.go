package main

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaswdr/faker"

	"tathya/pkg/comment"
	. "tathya/pkg/common"
	"tathya/pkg/likes"
	"tathya/pkg/post"
	"tathya/pkg/user"
)

var (
	f             = faker.New()
	onePassForAll = HashPass("sdfsdfsdf", RandStringRunes(8)) // salt must have len of 8
)

type IUserRepo interface {
	Add(*user.User) (string, error)
	GetAll() ([]*user.User, error)
}

func createAuthors(userRepo IUserRepo) {
	// Fixed users for experiments (not random)
	_, err := userRepo.Add(&user.User{
		Username: "pike",
		Password: onePassForAll,
	})
	if err != nil {
		log.Fatalln("seed: can't create default user:", err)
	}
	_, err = userRepo.Add(&user.User{
		Username: "warden",
		Password: onePassForAll,
		Role:     user.RoleModerator,
	})
	if err != nil {
		log.Fatalln("seed: can't create default moderator:", err)
	}
	for i := 1; i <= 5; i++ {
		genUser(userRepo)
	}
}

func seed(userRepo IUserRepo, postRepo *post.Repo) {
	authors, err := userRepo.GetAll()
	if err != nil {
		log.Fatalln("seed: can't get all authors:", err)
	}

	if len(authors) == 0 {
		createAuthors(userRepo)
		authors, err = userRepo.GetAll()
		if err != nil {
			log.Fatalln("seed: can't get all authors:", err)
		}
	}

	for i := 0; i <= 5; i++ {
		_, err := postRepo.Add(context.Background(), genPost(authors))
		if err != nil {
			log.Fatalln("seed: can't add post:", err)
		}
	}
}

func genUser(userRepo IUserRepo) {
	username := strings.ToLower(f.Person().FirstName())
	u := user.User{
		Username: username,
		Password: onePassForAll,
		Role:     user.RoleStudent,
	}
	_, err := userRepo.Add(&u)
	if err != nil {
		log.Fatalln("seed: can't add user:", err)
	}
}

func genLikes(users []*user.User) likes.Set {
	set := likes.Set{}
	for _, u := range users {
		if rand.Intn(2) == 0 {
			set, _ = likes.Toggle(set, u.Id)
		}
	}
	return set
}

func genReplies(users []*user.User) []*comment.Reply {
	n := rand.Intn(3)
	replies := []*comment.Reply{}
	for i := 0; i < n; i++ {
		replies = append(replies, &comment.Reply{
			Id:      comment.ReplyId(uuid.NewString()),
			Author:  randUser(users),
			Created: f.Time().Time(time.Now()),
			Body:    genText(),
			LikedBy: genLikes(users),
		})
	}
	return replies
}

func genComments(users []*user.User) []*comment.Comment {
	n := rand.Intn(10)
	comments := []*comment.Comment{}
	for i := 0; i <= n; i++ {
		comments = append(comments, &comment.Comment{
			Id:      comment.CommentId(uuid.NewString()),
			Author:  randUser(users),
			Created: f.Time().Time(time.Now()),
			Body:    genText(),
			LikedBy: genLikes(users),
			Pinned:  rand.Intn(10) == 0,
			Replies: genReplies(users),
		})
	}
	return comments
}

func genTitle() string {
	return strings.Join(f.Lorem().Words(rand.Intn(5)+3), " ")
}

func genText() string {
	return f.Lorem().Paragraph(rand.Intn(3) + 2)
}

func genPost(users []*user.User) *post.Post {
	created := f.Time().Time(time.Now())
	return &post.Post{
		Author:      randUser(users),
		Id:          post.PostId(uuid.NewString()),
		Title:       genTitle(),
		Body:        genText(),
		LikedBy:     genLikes(users),
		Comments:    genComments(users),
		IsAnonymous: rand.Intn(4) == 0,
		IsVisible:   true,
		Approved:    rand.Intn(4) != 0, // leave some for the moderation queue
		Created:     created,
		Updated:     created,
	}
}

func randUser(users []*user.User) *user.User {
	idx := rand.Intn(len(users))
	return users[idx]
}
