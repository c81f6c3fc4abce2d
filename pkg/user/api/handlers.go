package api

import (
	"context"
	"fmt"
	"net/http"

	"tathya/pkg/apperr"
	"tathya/pkg/common"
	"tathya/pkg/logger"
	"tathya/pkg/user"
)

type (
	UserRepo interface {
		UserExists(string) bool
		GetByUsernameAndPass(string, string) (*user.User, error)
		Add(*user.User) (string, error)
	}

	SessionManager interface {
		CreateToken(*user.User) (string, error)
		CleanupUserSessions(userId string) error
	}

	UserHandler struct {
		Repo           UserRepo
		SessionManager SessionManager
	}

	HttpUser struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
)

func NewUserHanler(r UserRepo, sm SessionManager) *UserHandler {
	return &UserHandler{
		Repo:           r,
		SessionManager: sm,
	}
}

func (uh UserHandler) LogIn(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	httpUser := new(HttpUser)
	err := common.ParseReqBody(r.Body, httpUser)
	if err != nil {
		logger.Log(r.Context()).Errorf("user/api: can't parse request body as user: %v", err)
		common.WriteErr(w, apperr.ErrValidation, "bad request format")
		return
	}

	authedUser, err := uh.Repo.GetByUsernameAndPass(httpUser.Username, httpUser.Password)
	if err != nil {
		logger.Log(r.Context()).Errorf("user/api: can't get the user by username `%s` and password: %v",
			httpUser.Username, err)
		// Wrong password and unknown username both read as not-found so
		// login failures don't reveal which usernames exist.
		common.WriteErr(w, apperr.ErrNotFound, "user not found")
		return
	}

	// Remove expired user sessions if there are any
	if err := uh.SessionManager.CleanupUserSessions(authedUser.Id); err != nil {
		logger.Log(r.Context()).Errorf("user/api: can't cleanup sessions for user `%s`, %v", httpUser.Username, err)
		common.WriteErr(w, err, "failed managing user sessions")
		return
	}

	w.WriteHeader(http.StatusOK)
	uh.sendToken(w, authedUser)
}

func (uh UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	httpUser := new(HttpUser)
	err := common.ParseReqBody(r.Body, httpUser)
	if err != nil {
		logger.Log(r.Context()).Errorf("user/api: can't parse request body as user: %v", err)
		common.WriteErr(w, apperr.ErrValidation, "bad request format")
		return
	}

	if uh.Repo.UserExists(httpUser.Username) {
		msg := fmt.Sprintf(`user "%s" already exists`, httpUser.Username)
		logger.Log(r.Context()).Error(msg)
		common.WriteMsg(w, msg, http.StatusConflict)
		return
	}

	salt := common.RandStringRunes(8)
	newUser := &user.User{
		Username: httpUser.Username,
		Password: common.HashPass(httpUser.Password, salt),
	}
	id, err := uh.Repo.Add(newUser)
	if err != nil {
		logger.Log(r.Context()).Errorf("user/api: can't add user `%s`: %v", httpUser.Username, err)
		common.WriteErr(w, err, "can't add user")
		return
	}
	newUser.Id = id

	w.WriteHeader(http.StatusCreated)
	uh.sendToken(w, newUser)
}

func (uh *UserHandler) sendToken(w http.ResponseWriter, u *user.User) {
	token, err := uh.SessionManager.CreateToken(u)
	if err != nil {
		logger.Log(context.Background()).Errorf("user/api: can't create JWT token from user: %v", err)
		common.WriteErr(w, err, "user authentication failed")
		return
	}

	tk := struct {
		Token string `json:"token"`
	}{token}
	common.WriteRespJSON(w, tk)
}
