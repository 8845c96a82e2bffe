package types

import "time"

// Ban is a durable site-wide ban/restriction record. At least one of
// AccountId, SessionId and IP identifies the target; at least one of the
// restriction flags must be set.
type Ban struct {
	Id                string    `json:"id" gorm:"primaryKey"`
	AccountId         *string   `json:"account_id,omitempty" gorm:"index"`
	SessionId         *string   `json:"session_id,omitempty" gorm:"index"`
	IP                *string   `json:"ip,omitempty" gorm:"index"`
	RestrictBroadcast bool      `json:"restrict_broadcast"`
	RestrictJoin      bool      `json:"restrict_join"`
	ExpiresAt         time.Time `json:"expires_at"`
	Reason            string    `json:"reason"`
	ReportId          *string   `json:"report_id,omitempty"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

func (b *Ban) Active(now time.Time) bool {
	return b.ExpiresAt.After(now)
}

// Matches reports whether the ban applies to the given identity. Any of
// the three target fields is sufficient.
func (b *Ban) Matches(id Identity) bool {
	if b.AccountId != nil && id.Kind == IdentityAccount && *b.AccountId == id.AccountId {
		return true
	}
	if b.SessionId != nil && id.SessionId != "" && *b.SessionId == id.SessionId {
		return true
	}
	if b.IP != nil && id.IP != "" && *b.IP == id.IP {
		return true
	}
	return false
}

// Report is an abuse report; a ban may reference the report it resolves.
type Report struct {
	Id         string    `json:"id" gorm:"primaryKey"`
	ReporterId string    `json:"reporter_id"`
	TargetId   string    `json:"target_id"`
	RoomName   string    `json:"room_name"`
	Reason     string    `json:"reason"`
	Resolved   bool      `json:"resolved"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
	CreatedAt  time.Time `json:"created_at"`
}
