package permission

import (
	"testing"

	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func testRoom() *types.Room {
	owner := "owner@example.com"
	return &types.Room{
		Name:    "alpha",
		OwnerId: &owner,
		Moderators: []types.ModeratorEntry{
			{RoomName: "alpha", AccountId: strPtr("mod@example.com"), AssignedBy: &owner},
			{RoomName: "alpha", SessionToken: strPtr("guest-session-1"), AssignedBy: &owner,
				Permissions: &types.JSONStringMap{string(ActionClearFeed): "true"}},
			{RoomName: "alpha", AccountId: strPtr("laundered@example.com"), AssignedBy: strPtr("mod@example.com")},
			{RoomName: "alpha", AccountId: strPtr("implicit@example.com"),
				Permissions: &types.JSONStringMap{string(ActionCloseBroadcast): "true"}},
		},
	}
}

func TestAdminMayDoEverything(t *testing.T) {
	room := testRoom()
	admin := types.AccountIdentity("boss@example.com", "s", "", "c")
	for _, action := range []Action{ActionKick, ActionMute, ActionCloseBroadcast, ActionClearFeed, ActionViewBanlist} {
		assert.True(t, Authorize(admin, types.RoleAdmin, action, room))
	}
}

func TestOwnerMayDoEverything(t *testing.T) {
	room := testRoom()
	owner := types.AccountIdentity("owner@example.com", "s", "", "c")
	assert.True(t, Authorize(owner, "", ActionKick, room))
	assert.True(t, Authorize(owner, "", ActionAssignModerator, room))
}

func TestFullModerator(t *testing.T) {
	room := testRoom()
	mod := types.AccountIdentity("mod@example.com", "s", "", "c")
	// no permissions map on the entry means full moderator
	assert.True(t, Authorize(mod, "", ActionKick, room))
	assert.True(t, Authorize(mod, "", ActionMute, room))
}

func TestGuestModeratorGrants(t *testing.T) {
	room := testRoom()
	guest := types.SessionIdentity("guest-session-1", "", "c")
	assert.True(t, Authorize(guest, "", ActionClearFeed, room))
	assert.False(t, Authorize(guest, "", ActionKick, room))
}

func TestStrangerDeniedEverything(t *testing.T) {
	room := testRoom()
	stranger := types.AccountIdentity("nobody@example.com", "s", "", "c")
	for _, action := range []Action{ActionKick, ActionMute, ActionCloseBroadcast, ActionClearFeed, ActionViewBanlist, ActionSetTopic} {
		assert.False(t, Authorize(stranger, "", action, room))
	}
	guest := types.SessionIdentity("unknown-session", "", "c")
	assert.False(t, Authorize(guest, "", ActionKick, room))
}

func TestModeratorAppointedByModeratorDenied(t *testing.T) {
	room := testRoom()
	// appointed by mod@example.com, not by the owner: no authority at all
	laundered := types.AccountIdentity("laundered@example.com", "s", "", "c")
	for _, action := range []Action{ActionKick, ActionMute, ActionClearFeed} {
		assert.False(t, Authorize(laundered, "", action, room))
	}
}

func TestImplicitModeratorUsesGrants(t *testing.T) {
	room := testRoom()
	// no assigner at all (temporary, implicit appointment): entry counts
	implicit := types.AccountIdentity("implicit@example.com", "s", "", "c")
	assert.True(t, Authorize(implicit, "", ActionCloseBroadcast, room))
	assert.False(t, Authorize(implicit, "", ActionKick, room))
}

func TestOwnerlessRoom(t *testing.T) {
	room := testRoom()
	room.OwnerId = nil
	stranger := types.AccountIdentity("nobody@example.com", "s", "", "c")
	assert.False(t, Authorize(stranger, "", ActionKick, room))
	// entries assigned by the former owner no longer match an owner
	mod := types.AccountIdentity("mod@example.com", "s", "", "c")
	assert.False(t, Authorize(mod, "", ActionKick, room))
	// implicit entries still count
	implicit := types.AccountIdentity("implicit@example.com", "s", "", "c")
	assert.True(t, Authorize(implicit, "", ActionCloseBroadcast, room))
}

func TestGrantsFromMap(t *testing.T) {
	g := GrantsFromMap(types.JSONStringMap{"kick": "true", "clearChat": "false", "setTopic": ""})
	assert.True(t, g[ActionKick])
	assert.False(t, g[ActionClearFeed])
	assert.False(t, g[ActionSetTopic])
}
