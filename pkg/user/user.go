package user

const (
	RoleStudent   = "student"
	RoleModerator = "moderator"
)

type User struct {
	Username string `json:"username"`
	Password []byte `json:"-"`
	Id       string `json:"id"`
	Role     string `json:"role"`
}

func (u *User) IsModerator() bool {
	return u != nil && u.Role == RoleModerator
}
