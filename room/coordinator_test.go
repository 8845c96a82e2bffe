package room

import (
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/persistence"
	"github.com/hovercast/hovercast-coordinator/presence"
	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeBridge struct {
	mu          sync.Mutex
	closedRooms []string
	done        chan struct{}
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{done: make(chan struct{}, 8)}
}

func (f *fakeBridge) CreateToken(now time.Time) (string, error) {
	return "token", nil
}

func (f *fakeBridge) CloseRoom(serverId, mediaRoomId string) error {
	f.mu.Lock()
	f.closedRooms = append(f.closedRooms, mediaRoomId)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeBridge) CloseBroadcast(serverId, mediaRoomId, participantId string) error {
	f.done <- struct{}{}
	return nil
}

func strPtr(s string) *string { return &s }

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeBridge) {
	t.Helper()
	cfg := &config.Config{}
	cfg.PersistenceConfig.Type = "sqlite"
	cfg.PersistenceConfig.DSN = filepath.Join(t.TempDir(), "test.db")
	store, err := persistence.NewPersister(cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	pres, err := presence.NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pres.Close()
		_ = store.Close()
	})
	bridge := newFakeBridge()
	c := &Coordinator{
		Store:    store,
		Presence: pres,
		Gateway:  bridge,
		Logger:   hclog.NewNullLogger(),
		Cfg:      cfg,
	}
	return c, bridge
}

func guestJoin(roomName, n string) JoinRequest {
	return JoinRequest{
		RoomName: roomName,
		Handle:   n,
		Identity: types.SessionIdentity("sess-"+n, "10.0.0.1", "conn-"+n),
	}
}

func storeUnownedRoom(t *testing.T, c *Coordinator, name, mediaRoomId string) {
	t.Helper()
	require.NoError(t, c.Store.StoreRoom(types.Room{
		Name:        name,
		MediaRoomId: mediaRoomId,
		Active:      true,
		Public:      true,
	}))
}

func TestJoinUnknownRoom(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, _, err := c.Join(guestJoin("nosuchroom", "alice"))
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestJoinClaimsRoomForRegisteredAccount(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Store.StoreUser(types.User{Id: "streamer@example.com", Nick: "streamer"}))

	req := guestJoin("streamer@example.com", "alice")
	participant, room, err := c.Join(req)
	require.NoError(t, err)

	require.NotNil(t, room.OwnerId)
	assert.Equal(t, "streamer@example.com", *room.OwnerId)
	assert.True(t, room.Active)
	assert.True(t, room.Public)
	assert.NotEmpty(t, participant.ListId)
	assert.NotEmpty(t, participant.Color)
}

func TestJoinBannedIdentityRejected(t *testing.T) {
	c, _ := newTestCoordinator(t)
	storeUnownedRoom(t, c, "lobby", "")
	require.NoError(t, c.Store.StoreBan(types.Ban{
		Id:           "ban-1",
		SessionId:    strPtr("sess-alice"),
		RestrictJoin: true,
		ExpiresAt:    time.Now().Add(time.Hour),
		Reason:       "spam",
		CreatedBy:    "admin@example.com",
		CreatedAt:    time.Now(),
	}))

	_, _, err := c.Join(guestJoin("lobby", "alice"))
	assert.Equal(t, types.KindPermissionDenied, types.KindOf(err))

	participants, err := c.Store.GetParticipants("lobby")
	require.NoError(t, err)
	assert.Len(t, participants, 0)
}

func TestJoinBroadcastOnlyBanStillJoins(t *testing.T) {
	c, _ := newTestCoordinator(t)
	storeUnownedRoom(t, c, "lobby", "")
	require.NoError(t, c.Store.StoreBan(types.Ban{
		Id:                "ban-1",
		SessionId:         strPtr("sess-alice"),
		RestrictBroadcast: true,
		ExpiresAt:         time.Now().Add(time.Hour),
		Reason:            "stream abuse",
		CreatedBy:         "admin@example.com",
		CreatedAt:         time.Now(),
	}))

	_, _, err := c.Join(guestJoin("lobby", "alice"))
	require.NoError(t, err)
}

func TestJoinHandleValidatedBeforeMutation(t *testing.T) {
	c, _ := newTestCoordinator(t)
	storeUnownedRoom(t, c, "lobby", "")

	_, _, err := c.Join(guestJoin("lobby", "no spaces allowed"))
	assert.Equal(t, types.KindInvalidInput, types.KindOf(err))
	_, _, err = c.Join(guestJoin("lobby", "waaaaaaaaaaaaaaaaaaaaytoolong"))
	assert.Equal(t, types.KindInvalidInput, types.KindOf(err))

	participants, err := c.Store.GetParticipants("lobby")
	require.NoError(t, err)
	assert.Len(t, participants, 0)
}

func TestJoinPasswordProtectedRoom(t *testing.T) {
	c, _ := newTestCoordinator(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, c.Store.StoreRoom(types.Room{
		Name:         "private",
		Active:       true,
		PasswordHash: strPtr(string(hash)),
	}))

	_, _, err = c.Join(guestJoin("private", "alice"))
	assert.Equal(t, types.KindPermissionDenied, types.KindOf(err))

	req := guestJoin("private", "alice")
	req.Password = "wrong"
	_, _, err = c.Join(req)
	assert.Equal(t, types.KindPermissionDenied, types.KindOf(err))

	req.Password = "hunter2"
	_, _, err = c.Join(req)
	require.NoError(t, err)
}

func TestJoinAccountRequirements(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Store.StoreRoom(types.Room{
		Name:                 "strict",
		Active:               true,
		MinAccountAgeDays:    7,
		RequireVerifiedEmail: true,
	}))

	// guests fail both requirements
	_, _, err := c.Join(guestJoin("strict", "alice"))
	assert.Equal(t, types.KindPermissionDenied, types.KindOf(err))

	young := &types.User{Id: "new@example.com", EmailVerified: true, CreatedAt: time.Now()}
	req := guestJoin("strict", "newbie")
	req.Identity = types.AccountIdentity(young.Id, "sess-n", "", "conn-n")
	req.Account = young
	_, _, err = c.Join(req)
	assert.Equal(t, types.KindPermissionDenied, types.KindOf(err))

	old := &types.User{Id: "old@example.com", EmailVerified: true, CreatedAt: time.Now().Add(-30 * 24 * time.Hour)}
	req = guestJoin("strict", "veteran")
	req.Identity = types.AccountIdentity(old.Id, "sess-o", "", "conn-o")
	req.Account = old
	_, _, err = c.Join(req)
	require.NoError(t, err)
}

func TestJoinAssignsUniqueColors(t *testing.T) {
	c, _ := newTestCoordinator(t)
	storeUnownedRoom(t, c, "lobby", "")

	seen := make(map[string]struct{})
	for i := 0; i < len(Palette); i++ {
		p, _, err := c.Join(guestJoin("lobby", "u"+strconv.Itoa(i)))
		require.NoError(t, err)
		_, dup := seen[p.Color]
		assert.False(t, dup, "color %s assigned twice", p.Color)
		seen[p.Color] = struct{}{}
	}
}

func TestConcurrentJoinsAssignUniqueColors(t *testing.T) {
	c, _ := newTestCoordinator(t)
	storeUnownedRoom(t, c, "lobby", "")

	var wg sync.WaitGroup
	errs := make(chan error, len(Palette))
	for i := 0; i < len(Palette); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := c.Join(guestJoin("lobby", "u"+strconv.Itoa(i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	participants, err := c.Store.GetParticipants("lobby")
	require.NoError(t, err)
	require.Len(t, participants, len(Palette))
	seen := make(map[string]int)
	for _, p := range participants {
		seen[p.Color]++
	}
	for color, n := range seen {
		assert.Equal(t, 1, n, "color %s assigned %d times", color, n)
	}
}

func TestRosterCountsJoinsMinusLeaves(t *testing.T) {
	c, _ := newTestCoordinator(t)
	storeUnownedRoom(t, c, "lobby", "")

	const joins, leaves = 7, 3
	for i := 0; i < joins; i++ {
		_, _, err := c.Join(guestJoin("lobby", "u"+strconv.Itoa(i)))
		require.NoError(t, err)
	}
	for i := 0; i < leaves; i++ {
		left, err := c.Leave("lobby", "conn-u"+strconv.Itoa(i))
		require.NoError(t, err)
		require.NotNil(t, left)
	}

	participants, err := c.Store.GetParticipants("lobby")
	require.NoError(t, err)
	assert.Len(t, participants, joins-leaves)
}

func TestLeaveUnknownConnectionIsNoop(t *testing.T) {
	c, _ := newTestCoordinator(t)
	storeUnownedRoom(t, c, "lobby", "")

	left, err := c.Leave("lobby", "conn-ghost")
	require.NoError(t, err)
	assert.Nil(t, left)
}

func TestLastLeaveDeletesUnownedRoomAndClosesMedia(t *testing.T) {
	c, bridge := newTestCoordinator(t)
	storeUnownedRoom(t, c, "ephemeral", "4711")

	_, _, err := c.Join(guestJoin("ephemeral", "alice"))
	require.NoError(t, err)
	_, err = c.Leave("ephemeral", "conn-alice")
	require.NoError(t, err)

	select {
	case <-bridge.done:
	case <-time.After(time.Second):
		t.Fatal("media room was not closed")
	}
	bridge.mu.Lock()
	assert.Equal(t, []string{"4711"}, bridge.closedRooms)
	bridge.mu.Unlock()

	err = c.Store.GetRoom(&types.Room{Name: "ephemeral"})
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestOwnedRoomSurvivesEmptiness(t *testing.T) {
	c, bridge := newTestCoordinator(t)
	require.NoError(t, c.Store.StoreUser(types.User{Id: "streamer@example.com"}))

	_, _, err := c.Join(guestJoin("streamer@example.com", "alice"))
	require.NoError(t, err)
	_, err = c.Leave("streamer@example.com", "conn-alice")
	require.NoError(t, err)

	room := &types.Room{Name: "streamer@example.com"}
	require.NoError(t, c.Store.GetRoom(room))
	select {
	case <-bridge.done:
		t.Fatal("media room of an owned room must not be torn down")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSanitizeRemovesGhosts(t *testing.T) {
	c, _ := newTestCoordinator(t)
	storeUnownedRoom(t, c, "lobby", "")

	for _, n := range []string{"alice", "bob", "carol"} {
		_, _, err := c.Join(guestJoin("lobby", n))
		require.NoError(t, err)
	}
	alive := map[string]struct{}{
		"conn-alice": {},
		"conn-carol": {},
	}

	removed, err := c.Sanitize("lobby", alive)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "bob", removed[0].Handle)

	participants, err := c.Store.GetParticipants("lobby")
	require.NoError(t, err)
	assert.Len(t, participants, 2)
	_, found, err := c.Presence.GetEntry("conn-bob")
	require.NoError(t, err)
	assert.False(t, found)
}
