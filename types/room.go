package types

import (
	"time"
)

// Room is the durable room record, one per room name. The associated
// Participant rows are the authoritative roster of currently-connected
// participants; the presence cache is only a denormalized copy of them.
type Room struct {
	Name          string  `json:"name" gorm:"primaryKey"`
	OwnerId       *string `json:"owner_id"` // nil for unclaimed, ephemeral rooms
	Owner         *User   `json:"owner,omitempty" gorm:"foreignKey:OwnerId"`
	MediaRoomId   string  `json:"media_room_id"`
	MediaServerId string  `json:"media_server_id"`
	Active        bool    `json:"active"`
	AgeRestricted bool    `json:"age_restricted"`

	Public               bool      `json:"public"`
	PasswordHash         *string   `json:"-"`
	Topic                string    `json:"topic"`
	TopicSetBy           string    `json:"topic_set_by"`
	TopicSetAt           time.Time `json:"topic_set_at"`
	MinAccountAgeDays    int       `json:"min_account_age_days"`
	RequireVerifiedEmail bool      `json:"require_verified_email"`

	Moderators []ModeratorEntry `json:"moderators" gorm:"foreignKey:RoomName"`
	Users      []Participant    `json:"users" gorm:"foreignKey:RoomName"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// IsOwner reports whether the given identity is the room owner. Guests can
// never own a room.
func (r *Room) IsOwner(id Identity) bool {
	if r.OwnerId == nil || *r.OwnerId == "" {
		return false
	}
	return id.Kind == IdentityAccount && id.AccountId == *r.OwnerId
}

func (r *Room) FindByListId(listId string) *Participant {
	for i := range r.Users {
		if r.Users[i].ListId == listId {
			return &r.Users[i]
		}
	}
	return nil
}

func (r *Room) FindByConnection(connectionId string) *Participant {
	for i := range r.Users {
		if r.Users[i].ConnectionId == connectionId {
			return &r.Users[i]
		}
	}
	return nil
}

// Participant is one roster row: a currently-connected participant of a
// room. Unique per (room, connection).
type Participant struct {
	Id             uint    `json:"-" gorm:"primaryKey"`
	RoomName       string  `json:"-" gorm:"index:idx_roster_conn,unique"`
	ConnectionId   string  `json:"-" gorm:"index:idx_roster_conn,unique"`
	ListId         string  `json:"list_id"` // ephemeral id clients address each other by
	SessionId      string  `json:"-"`
	AccountId      *string `json:"account_id"` // nil for guests
	Handle         string  `json:"handle"`
	Color          string  `json:"color"`
	IsBroadcasting bool    `json:"is_broadcasting"`
	IsAdmin        bool    `json:"is_admin"`
	IsSiteMod      bool    `json:"is_site_mod"`
}

// ModeratorEntry grants moderation capability within one room, either to a
// registered account (durable) or to a guest session (valid for the
// current browser session only). A nil Permissions map means full
// moderator; an empty AssignedBy means the entry is a temporary, implicit
// appointment (f.e. the first broadcaster).
type ModeratorEntry struct {
	Id           uint           `json:"-" gorm:"primaryKey"`
	RoomName     string         `json:"-" gorm:"index"`
	AccountId    *string        `json:"account_id,omitempty" gorm:"index"`
	SessionToken *string        `json:"session_token,omitempty" gorm:"index"`
	AssignedBy   *string        `json:"assigned_by,omitempty"`
	Permissions  *JSONStringMap `json:"permissions,omitempty"`
}

// MatchesIdentity reports whether this entry grants to the given identity.
// Accounts match on the durable id, guests on the session token.
func (m *ModeratorEntry) MatchesIdentity(id Identity) bool {
	switch id.Kind {
	case IdentityAccount:
		return m.AccountId != nil && *m.AccountId == id.AccountId
	case IdentitySession:
		return m.SessionToken != nil && *m.SessionToken == id.SessionId
	}
	return false
}

// AssignedByOwner reports whether the entry was appointed by the current
// room owner (or is an implicit appointment with no assigner). Entries
// appointed by anyone else carry no authority.
func (m *ModeratorEntry) AssignedByOwner(r *Room) bool {
	if m.AssignedBy == nil || *m.AssignedBy == "" {
		return true
	}
	return r.OwnerId != nil && *m.AssignedBy == *r.OwnerId
}
