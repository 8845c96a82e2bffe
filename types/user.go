package types

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Site-wide privilege levels attached to an account, independent of any
// single room's moderator list.
const (
	RoleAdmin   = "admin"
	RoleSiteMod = "moderator"
)

// User is a registered account. Guests never become Users, they only exist
// as roster entries identified by their session token.
type User struct {
	Id                   string         `json:"id" gorm:"primaryKey"` // e-mail, unique!
	Nick                 string         `json:"nick"`
	Role                 string         `json:"role"` // RoleAdmin, RoleSiteMod or empty
	EmailVerified        bool           `json:"email_verified"`
	AllowPrivateMessages bool           `json:"allow_private_messages"`
	PushEndpoint         string         `json:"-"`
	PushKeys             datatypes.JSON `json:"-"`
	CreatedAt            time.Time      `json:"-"`
	UpdatedAt            time.Time      `json:"-"`
	LastOnline           time.Time      `json:"last_online"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

func (u *User) IsSiteMod() bool {
	return u != nil && u.Role == RoleSiteMod
}

// PushKeyMap decodes the stored push keys into header key/value pairs for
// the push sender; nil when none are registered.
func (u *User) PushKeyMap() map[string]string {
	if u == nil || len(u.PushKeys) == 0 {
		return nil
	}
	keys := make(map[string]string)
	if err := json.Unmarshal(u.PushKeys, &keys); err != nil {
		return nil
	}
	return keys
}

// AccountAge is the age of the account, used for the minimum-account-age
// admission check.
func (u *User) AccountAge(now time.Time) time.Duration {
	if u == nil || u.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(u.CreatedAt)
}
