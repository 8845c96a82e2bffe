package presence

import (
	"testing"
	"time"

	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.Config{}
	s, err := NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEntryRoundtrip(t *testing.T) {
	s := newTestStore(t)
	e := Entry{Handle: "ada", Color: "#ff0000", ListId: "l1", RoomName: "alpha", AccountId: "ada@example.com"}
	require.NoError(t, s.SetEntry("conn-1", e))

	got, ok, err := s.GetEntry("conn-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, e, got)

	_, ok, err = s.GetEntry("conn-unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteEntry(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetEntry("conn-1", Entry{Handle: "ada", ListId: "l1"}))
	require.NoError(t, s.DeleteEntry("conn-1"))
	_, ok, err := s.GetEntry("conn-1")
	require.NoError(t, err)
	assert.False(t, ok)
	// deleting a missing entry is not an error
	require.NoError(t, s.DeleteEntry("conn-1"))
}

func TestFindByListId(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetEntry("conn-1", Entry{Handle: "ada", ListId: "l1", RoomName: "alpha"}))
	require.NoError(t, s.SetEntry("conn-2", Entry{Handle: "bob", ListId: "l2", RoomName: "alpha"}))

	connId, e, ok, err := s.FindByListId("l2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "conn-2", connId)
	assert.Equal(t, "bob", e.Handle)

	_, _, ok, err = s.FindByListId("l3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSilenceExpires(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Silence("acct:ada@example.com", 30*time.Millisecond))

	silenced, err := s.IsSilenced("acct:ada@example.com")
	require.NoError(t, err)
	assert.True(t, silenced)

	silenced, err = s.IsSilenced("acct:bob@example.com")
	require.NoError(t, err)
	assert.False(t, silenced)

	time.Sleep(60 * time.Millisecond)
	silenced, err = s.IsSilenced("acct:ada@example.com")
	require.NoError(t, err)
	assert.False(t, silenced)
}

func TestSilenceDefaultTimeout(t *testing.T) {
	s := newTestStore(t)
	// non-positive duration falls back to the configured default
	require.NoError(t, s.Silence("sess:guest-1", 0))
	silenced, err := s.IsSilenced("sess:guest-1")
	require.NoError(t, err)
	assert.True(t, silenced)
}
