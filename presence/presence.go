// Package presence is the ephemeral per-connection identity cache. It is
// a denormalized read-optimization over the room roster: entries may be
// briefly stale or missing, in which case the room store is the fallback
// of record. It also holds the short-TTL silence markers.
package presence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/tidwall/buntdb"
)

const (
	entryPrefix   = "conn:"
	silencePrefix = "mute:"
	listIdIndex   = "connlistid"
)

// Entry is the cached identity of one connection.
type Entry struct {
	Handle       string            `json:"handle"`
	Color        string            `json:"color"`
	ListId       string            `json:"list_id"`
	RoomName     string            `json:"room_name"`
	AccountId    string            `json:"account_id,omitempty"`
	PushEndpoint string            `json:"push_endpoint,omitempty"`
	PushKeys     map[string]string `json:"push_keys,omitempty"`
}

type Store struct {
	db         *buntdb.DB
	entryTTL   time.Duration
	silenceTTL time.Duration
}

// NewStore opens the presence cache. An empty path in the configuration
// opens an in-memory store.
func NewStore(cfg *config.Config) (*Store, error) {
	path := cfg.PresenceConfig.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex(listIdIndex, entryPrefix+"*", buntdb.IndexJSON("list_id"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:         db,
		entryTTL:   cfg.PresenceConfig.EntryTTL(),
		silenceTTL: cfg.PresenceConfig.SilenceTimeout(),
	}, nil
}

// SetEntry writes (or refreshes) the cached identity of a connection.
func (s *Store) SetEntry(connectionId string, e Entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(entryPrefix+connectionId, string(val), &buntdb.SetOptions{Expires: true, TTL: s.entryTTL})
		return err
	})
}

// GetEntry returns the cached identity of a connection. ok is false on a
// cache miss (absent or expired).
func (s *Store) GetEntry(connectionId string) (Entry, bool, error) {
	var e Entry
	found := false
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(entryPrefix + connectionId)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			return err
		}
		found = true
		return nil
	})
	return e, found, err
}

func (s *Store) DeleteEntry(connectionId string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(entryPrefix + connectionId)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// FindByListId resolves a participant list id to its live connection via
// the JSON index on the cached entries.
func (s *Store) FindByListId(listId string) (string, Entry, bool, error) {
	var e Entry
	connectionId := ""
	found := false
	pivot := fmt.Sprintf(`{"list_id":%q}`, listId)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendEqual(listIdIndex, pivot, func(key, val string) bool {
			if err := json.Unmarshal([]byte(val), &e); err != nil {
				return true
			}
			connectionId = key[len(entryPrefix):]
			found = true
			return false
		})
	})
	return connectionId, e, found, err
}

// Silence marks an identity key as silenced. A non-positive duration uses
// the configured default timeout. The marker expires on its own; there is
// no unsilence operation.
func (s *Store) Silence(identityKey string, d time.Duration) error {
	if d <= 0 {
		d = s.silenceTTL
	}
	expiry := time.Now().Add(d)
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(silencePrefix+identityKey, expiry.Format(time.RFC3339), &buntdb.SetOptions{Expires: true, TTL: d})
		return err
	})
}

// IsSilenced reports whether an identity key currently carries a silence
// marker.
func (s *Store) IsSilenced(identityKey string) (bool, error) {
	silenced := false
	err := s.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(silencePrefix + identityKey)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		silenced = true
		return nil
	})
	return silenced, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
