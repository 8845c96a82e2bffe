package types

// IdentityKind discriminates how a participant is identified.
type IdentityKind int

const (
	// IdentityAccount identifies a registered account by its durable id.
	IdentityAccount IdentityKind = iota + 1
	// IdentitySession identifies a guest by its browser session token only.
	IdentitySession
)

// Identity identifies an acting or targeted participant. Every identity
// carries the session and connection it arrived on; only account
// identities carry a durable account id.
type Identity struct {
	Kind         IdentityKind `json:"kind"`
	AccountId    string       `json:"account_id,omitempty"`
	SessionId    string       `json:"session_id,omitempty"`
	IP           string       `json:"ip,omitempty"`
	ConnectionId string       `json:"connection_id,omitempty"`
}

func AccountIdentity(accountId, sessionId, ip, connectionId string) Identity {
	return Identity{
		Kind:         IdentityAccount,
		AccountId:    accountId,
		SessionId:    sessionId,
		IP:           ip,
		ConnectionId: connectionId,
	}
}

func SessionIdentity(sessionId, ip, connectionId string) Identity {
	return Identity{
		Kind:         IdentitySession,
		SessionId:    sessionId,
		IP:           ip,
		ConnectionId: connectionId,
	}
}

// Key returns the stable key used for presence-layer markers (silence).
// Accounts are keyed by account id so a silence follows the account across
// reconnects, guests by their session token.
func (i Identity) Key() string {
	switch i.Kind {
	case IdentityAccount:
		return "acct:" + i.AccountId
	case IdentitySession:
		return "sess:" + i.SessionId
	}
	return ""
}

// IdentityOf derives the identity of a roster entry.
func IdentityOf(p *Participant) Identity {
	if p.AccountId != nil && *p.AccountId != "" {
		return AccountIdentity(*p.AccountId, p.SessionId, "", p.ConnectionId)
	}
	return SessionIdentity(p.SessionId, "", p.ConnectionId)
}
