// Package permission decides whether a participant may perform a
// moderation action in a room. It is pure: it only inspects an in-memory
// room snapshot and never touches storage, so a single moderation
// operation needs no extra round-trips.
package permission

import (
	"github.com/hovercast/hovercast-coordinator/types"
)

// Action is the closed set of moderation actions a moderator entry can be
// granted. The string values are what is stored in the permissions map.
type Action string

const (
	ActionKick            Action = "kick"
	ActionMute            Action = "muteUserChat"
	ActionCloseBroadcast  Action = "closeCam"
	ActionClearFeed       Action = "clearChat"
	ActionSetTopic        Action = "setTopic"
	ActionViewBanlist     Action = "viewBanlist"
	ActionAssignModerator Action = "assignModerator"
)

// Grants is a moderator's capability set, decoded from the entry's
// permissions map. A nil map on the entry means full moderator and never
// reaches Grants.
type Grants map[Action]bool

// GrantsFromMap decodes a stored permissions map. Any value other than
// "false" and "" counts as granted.
func GrantsFromMap(m types.JSONStringMap) Grants {
	g := make(Grants, len(m))
	for k, v := range m {
		g[Action(k)] = v != "" && v != "false"
	}
	return g
}

// Authorize implements the layered permission check:
//
//  1. a site admin may do everything;
//  2. a moderator entry matching the actor counts only if it was assigned
//     by the current owner or carries no assigner (rejects moderators
//     appointed by another moderator);
//  3. without an entry, the owner may do everything;
//  4. an entry with no permissions map is a full moderator, otherwise the
//     action must be granted explicitly.
//
// role is the actor's site-wide privilege level (types.RoleAdmin etc.),
// empty for guests and regular accounts.
func Authorize(actor types.Identity, role string, action Action, room *types.Room) bool {
	if role == types.RoleAdmin {
		return true
	}
	var entry *types.ModeratorEntry
	for i := range room.Moderators {
		m := &room.Moderators[i]
		if !m.MatchesIdentity(actor) {
			continue
		}
		if !m.AssignedByOwner(room) {
			continue
		}
		entry = m
		break
	}
	if entry == nil {
		return room.IsOwner(actor)
	}
	if entry.Permissions == nil {
		return true
	}
	return GrantsFromMap(*entry.Permissions)[action]
}
