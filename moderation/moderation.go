// Package moderation implements one handler per moderation action. Every
// handler consults the permission engine, mutates state through the
// persister/presence/gateway, and returns a Result; it never touches the
// transport. The fan-out adapter in ws delivers the notices.
package moderation

import (
	"github.com/hashicorp/go-hclog"
	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/gateway"
	"github.com/hovercast/hovercast-coordinator/permission"
	"github.com/hovercast/hovercast-coordinator/persistence"
	"github.com/hovercast/hovercast-coordinator/presence"
	"github.com/hovercast/hovercast-coordinator/types"
)

// SessionStore is the transport layer's session registry. Invalidating a
// session prevents a kicked or banned participant from silently
// reconnecting with the same session.
type SessionStore interface {
	Invalidate(sessionId string)
}

type Service struct {
	Store    persistence.Persister
	Presence *presence.Store
	Gateway  gateway.Bridge
	Push     gateway.PushSender
	Sessions SessionStore
	Logger   hclog.Logger
	Cfg      *config.Config
}

// Actor is the resolved identity of the acting connection.
type Actor struct {
	Identity    types.Identity
	Participant *types.Participant // the actor's roster entry, nil if not in the room
	Role        string             // site-wide privilege level, empty for guests
}

// Result is a handler's outcome: the notices to fan out and, for
// kick-class actions, the connection the transport must terminate.
type Result struct {
	Notices            []types.Notice
	TargetConnectionId string
	DisconnectTarget   bool
	// Push is an out-of-band delivery the transport fires only when the
	// target connection is not live.
	Push *PushNotification
}

type PushNotification struct {
	Endpoint string
	Keys     map[string]string
	Payload  []byte
}

func (r *Result) add(n types.Notice) {
	r.Notices = append(r.Notices, n)
}

func (s *Service) authorize(actor Actor, action permission.Action, room *types.Room) error {
	if permission.Authorize(actor.Identity, actor.Role, action, room) {
		return nil
	}
	return types.ErrPermissionDenied("you are not allowed to do that")
}

func (s *Service) findTarget(actor Actor, room *types.Room, targetListId string) (*types.Participant, error) {
	target := room.FindByListId(targetListId)
	if target == nil {
		return nil, types.ErrNotFound("target not found")
	}
	if target.ConnectionId == actor.Identity.ConnectionId {
		return nil, types.ErrConflict("cannot target yourself")
	}
	return target, nil
}

// untouchable rejects moderation against site staff. Only the
// IsAdmin/IsSiteMod flags shield a target; the room owner carries no
// implicit immunity.
func untouchable(target *types.Participant) error {
	if target.IsAdmin {
		return types.ErrPermissionDenied("cannot target a site administrator")
	}
	if target.IsSiteMod {
		return types.ErrPermissionDenied("cannot target a site moderator")
	}
	return nil
}
