package persistence

import (
	"time"

	"github.com/hovercast/hovercast-coordinator/types"
)

// Persister is the durable room store. The roster and moderator entries
// are mutated through targeted per-row operations only; nothing ever
// rewrites a whole room with its associations, so concurrent joins/leaves
// on a hot room cannot lose each other's updates.
type Persister interface {
	StoreUser(types.User) error
	GetUser(*types.User) error
	GetUsers() ([]*types.User, error)
	DeleteUser(*types.User) error

	StoreRoom(types.Room) error
	GetRoom(*types.Room) error
	GetRooms() ([]*types.Room, error)
	DeleteRoom(*types.Room) error
	// DeleteRoomIfEmpty deletes the room when its roster is empty and it
	// has no owner. It reports whether the room was deleted and returns
	// the room as last seen (for media teardown).
	DeleteRoomIfEmpty(roomName string) (bool, *types.Room, error)

	AddParticipant(p *types.Participant) error
	// AddParticipantPickColor inserts the roster row with a color chosen
	// by pick from the colors currently in use. The read and the insert
	// run in one transaction holding the room row, so concurrent joins
	// cannot settle on the same free color.
	AddParticipantPickColor(p *types.Participant, pick func(used []string) string) error
	// RemoveParticipant deletes the roster row for (room, connection) and
	// returns it; nil when no such row exists.
	RemoveParticipant(roomName, connectionId string) (*types.Participant, error)
	FindParticipantByListId(roomName, listId string) (*types.Participant, error)
	GetParticipants(roomName string) ([]types.Participant, error)
	// UpdateParticipantHandle renames the participant; types.KindConflict
	// when the handle is already taken in the room.
	UpdateParticipantHandle(roomName, connectionId, handle string) error
	// RecolorParticipant reassigns the participant's color through the
	// same transactional read-pick-write and returns the chosen color.
	RecolorParticipant(roomName, connectionId string, pick func(used []string) string) (string, error)
	SetBroadcasting(roomName, listId string, broadcasting bool) error

	AddModerator(entry *types.ModeratorEntry) error
	RemoveModerator(roomName string, id types.Identity) error

	StoreBan(types.Ban) error
	// ActiveBans returns the unexpired bans matching the identity by
	// account id, session id or ip.
	ActiveBans(id types.Identity, now time.Time) ([]types.Ban, error)
	GetBans() ([]types.Ban, error)

	StoreReport(types.Report) error
	GetReport(*types.Report) error
	ResolveReport(reportId, resolvedBy string) error

	Close() error
}
