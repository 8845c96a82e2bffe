package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestPersister(t *testing.T) Persister {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{
			Type: "sqlite",
			DSN:  filepath.Join(t.TempDir(), "test.db"),
		},
	}
	p, err := NewPersister(cfg)
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() { p.Close() })
	return p
}

func addParticipant(t *testing.T, p Persister, room, conn, handle string) *types.Participant {
	t.Helper()
	participant := &types.Participant{
		RoomName:     room,
		ConnectionId: conn,
		ListId:       "list-" + conn,
		SessionId:    "sess-" + conn,
		Handle:       handle,
		Color:        "#123456",
	}
	require.NoError(t, p.AddParticipant(participant))
	return participant
}

func TestRosterCountsJoinsAndLeaves(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.StoreRoom(types.Room{Name: "alpha"}))

	for i, conn := range []string{"c1", "c2", "c3", "c4", "c5"} {
		addParticipant(t, p, "alpha", conn, "user"+string(rune('a'+i)))
	}
	for _, conn := range []string{"c2", "c4"} {
		removed, err := p.RemoveParticipant("alpha", conn)
		require.NoError(t, err)
		require.NotNil(t, removed)
	}

	participants, err := p.GetParticipants("alpha")
	require.NoError(t, err)
	assert.Len(t, participants, 3) // 5 joins, 2 leaves

	// removing an absent participant is a nil no-op
	removed, err := p.RemoveParticipant("alpha", "c2")
	require.NoError(t, err)
	assert.Nil(t, removed)
}

func TestDeleteRoomIfEmpty(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.StoreRoom(types.Room{Name: "ephemeral"}))
	owner := "owner@example.com"
	require.NoError(t, p.StoreUser(types.User{Id: owner}))
	require.NoError(t, p.StoreRoom(types.Room{Name: "owned", OwnerId: &owner}))

	// non-empty rooms are never deleted
	addParticipant(t, p, "ephemeral", "c1", "ada")
	deleted, _, err := p.DeleteRoomIfEmpty("ephemeral")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = p.RemoveParticipant("ephemeral", "c1")
	require.NoError(t, err)
	deleted, room, err := p.DeleteRoomIfEmpty("ephemeral")
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NotNil(t, room)
	err = p.GetRoom(&types.Room{Name: "ephemeral"})
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	// owned rooms persist across emptiness
	deleted, _, err = p.DeleteRoomIfEmpty("owned")
	require.NoError(t, err)
	assert.False(t, deleted)
	require.NoError(t, p.GetRoom(&types.Room{Name: "owned"}))
}

func TestUpdateParticipantHandleConflict(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.StoreRoom(types.Room{Name: "alpha"}))
	addParticipant(t, p, "alpha", "c1", "ada")
	addParticipant(t, p, "alpha", "c2", "bob")

	err := p.UpdateParticipantHandle("alpha", "c2", "ada")
	assert.Equal(t, types.KindConflict, types.KindOf(err))

	require.NoError(t, p.UpdateParticipantHandle("alpha", "c2", "bobby"))
	got, err := p.FindParticipantByListId("alpha", "list-c2")
	require.NoError(t, err)
	assert.Equal(t, "bobby", got.Handle)

	err = p.UpdateParticipantHandle("alpha", "c3", "eve")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestSetBroadcasting(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.StoreRoom(types.Room{Name: "alpha"}))
	participant := addParticipant(t, p, "alpha", "c1", "ada")

	require.NoError(t, p.SetBroadcasting("alpha", participant.ListId, true))
	got, err := p.FindParticipantByListId("alpha", participant.ListId)
	require.NoError(t, err)
	assert.True(t, got.IsBroadcasting)
}

func TestActiveBans(t *testing.T) {
	p := newTestPersister(t)
	now := time.Now()
	require.NoError(t, p.StoreBan(types.Ban{
		Id: "b1", AccountId: strPtr("ada@example.com"), RestrictJoin: true,
		ExpiresAt: now.Add(time.Hour), Reason: "spam",
	}))
	require.NoError(t, p.StoreBan(types.Ban{
		Id: "b2", IP: strPtr("10.0.0.7"), RestrictBroadcast: true,
		ExpiresAt: now.Add(time.Hour), Reason: "abuse",
	}))
	require.NoError(t, p.StoreBan(types.Ban{
		Id: "b3", AccountId: strPtr("ada@example.com"), RestrictJoin: true,
		ExpiresAt: now.Add(-time.Hour), Reason: "expired",
	}))

	bans, err := p.ActiveBans(types.AccountIdentity("ada@example.com", "s1", "", "c1"), now)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, "b1", bans[0].Id)

	bans, err = p.ActiveBans(types.SessionIdentity("s-other", "10.0.0.7", "c2"), now)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, "b2", bans[0].Id)

	bans, err = p.ActiveBans(types.SessionIdentity("s-clean", "10.0.0.8", "c3"), now)
	require.NoError(t, err)
	assert.Empty(t, bans)
}

func TestGetRoomPreloadsRosterAndModerators(t *testing.T) {
	p := newTestPersister(t)
	owner := "owner@example.com"
	require.NoError(t, p.StoreUser(types.User{Id: owner}))
	require.NoError(t, p.StoreRoom(types.Room{Name: "alpha", OwnerId: &owner}))
	addParticipant(t, p, "alpha", "c1", "ada")
	require.NoError(t, p.AddModerator(&types.ModeratorEntry{
		RoomName: "alpha", AccountId: strPtr("mod@example.com"), AssignedBy: &owner,
	}))

	room := types.Room{Name: "alpha"}
	require.NoError(t, p.GetRoom(&room))
	assert.Len(t, room.Users, 1)
	assert.Len(t, room.Moderators, 1)
}

func TestResolveReport(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.StoreReport(types.Report{Id: "r1", TargetId: "ada@example.com", Reason: "spam"}))

	require.NoError(t, p.ResolveReport("r1", "admin@example.com"))
	report := types.Report{Id: "r1"}
	require.NoError(t, p.GetReport(&report))
	assert.True(t, report.Resolved)
	assert.Equal(t, "admin@example.com", report.ResolvedBy)

	err := p.ResolveReport("r-missing", "admin@example.com")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}
