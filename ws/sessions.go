package ws

import (
	lru "github.com/hashicorp/golang-lru"
)

const revokedSessionCacheSize = 16384

// SessionRegistry tracks revoked session tokens. Kicks and bans invalidate
// the session so the same browser session cannot silently reconnect; the
// LRU bound keeps the set from growing without limit.
type SessionRegistry struct {
	revoked *lru.Cache
}

func NewSessionRegistry() (*SessionRegistry, error) {
	cache, err := lru.New(revokedSessionCacheSize)
	if err != nil {
		return nil, err
	}
	return &SessionRegistry{revoked: cache}, nil
}

func (r *SessionRegistry) Invalidate(sessionId string) {
	if sessionId == "" {
		return
	}
	r.revoked.Add(sessionId, struct{}{})
}

func (r *SessionRegistry) IsRevoked(sessionId string) bool {
	if sessionId == "" {
		return false
	}
	return r.revoked.Contains(sessionId)
}
