// Package room orchestrates the room lifecycle: admission and join,
// leave/disconnect, and the reconciliation sweep that removes ghost
// roster entries.
package room

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/gateway"
	"github.com/hovercast/hovercast-coordinator/persistence"
	"github.com/hovercast/hovercast-coordinator/presence"
	"github.com/hovercast/hovercast-coordinator/types"
	"golang.org/x/crypto/bcrypt"
)

type Coordinator struct {
	Store    persistence.Persister
	Presence *presence.Store
	Gateway  gateway.Bridge
	Logger   hclog.Logger
	Cfg      *config.Config
}

// JoinRequest carries everything admission needs. Account is nil for
// guests.
type JoinRequest struct {
	RoomName string
	Handle   string
	Password string
	Identity types.Identity
	Account  *types.User
}

// Join admits a participant to a room: admission checks, color
// assignment, one targeted roster insert, presence entry. It returns the
// new participant and the room as loaded (roster without the new entry).
func (c *Coordinator) Join(req JoinRequest) (*types.Participant, *types.Room, error) {
	if err := ValidateHandle(req.Handle, c.Cfg.LimitsConfig.HandleMaxLen()); err != nil {
		return nil, nil, err
	}

	room := &types.Room{Name: req.RoomName}
	err := c.Store.GetRoom(room)
	if types.KindOf(err) == types.KindNotFound {
		room, err = c.claimRoom(req)
	}
	if err != nil {
		return nil, nil, err
	}

	bans, err := c.Store.ActiveBans(req.Identity, time.Now())
	if err != nil {
		return nil, nil, err
	}
	for _, ban := range bans {
		if ban.RestrictJoin {
			return nil, nil, types.ErrPermissionDenied("you are banned from joining")
		}
	}

	if err := checkPassword(room, req.Password); err != nil {
		return nil, nil, err
	}

	if err := c.checkAccountRequirements(room, req.Account); err != nil {
		return nil, nil, err
	}

	participant := &types.Participant{
		RoomName:     req.RoomName,
		ConnectionId: req.Identity.ConnectionId,
		ListId:       uuid.New().String(),
		SessionId:    req.Identity.SessionId,
		Handle:       req.Handle,
	}
	if req.Account != nil {
		accountId := req.Account.Id
		participant.AccountId = &accountId
		participant.IsAdmin = req.Account.IsAdmin()
		participant.IsSiteMod = req.Account.IsSiteMod()
	}
	if err := c.Store.AddParticipantPickColor(participant, PickColor); err != nil {
		return nil, nil, err
	}

	entry := presence.Entry{
		Handle:   participant.Handle,
		Color:    participant.Color,
		ListId:   participant.ListId,
		RoomName: participant.RoomName,
	}
	if req.Account != nil {
		entry.AccountId = req.Account.Id
		entry.PushEndpoint = req.Account.PushEndpoint
		entry.PushKeys = req.Account.PushKeyMap()
	}
	if err := c.Presence.SetEntry(participant.ConnectionId, entry); err != nil {
		// the roster is authoritative, a failed cache write is not fatal
		c.Logger.Error("could not write presence entry", "connection", participant.ConnectionId, "error", err)
	}
	return participant, room, nil
}

// claimRoom creates a room on first join when the name corresponds to a
// registered account id; that account becomes the owner. Any other
// unknown name is NotFound.
func (c *Coordinator) claimRoom(req JoinRequest) (*types.Room, error) {
	owner := &types.User{Id: req.RoomName}
	if err := c.Store.GetUser(owner); err != nil {
		if types.KindOf(err) == types.KindNotFound {
			return nil, types.ErrNotFound("room not found")
		}
		return nil, err
	}
	ownerId := owner.Id
	room := types.Room{
		Name:    req.RoomName,
		OwnerId: &ownerId,
		Active:  true,
		Public:  true,
	}
	if err := c.Store.StoreRoom(room); err != nil {
		return nil, err
	}
	c.Logger.Info("room claimed on first join", "room", req.RoomName, "owner", ownerId)
	return &room, nil
}

func checkPassword(room *types.Room, password string) error {
	if room.PasswordHash == nil || *room.PasswordHash == "" {
		return nil
	}
	if bcrypt.CompareHashAndPassword([]byte(*room.PasswordHash), []byte(password)) != nil {
		return types.ErrPermissionDenied("wrong room password")
	}
	return nil
}

func (c *Coordinator) checkAccountRequirements(room *types.Room, account *types.User) error {
	if room.MinAccountAgeDays > 0 {
		minAge := time.Duration(room.MinAccountAgeDays) * 24 * time.Hour
		if account == nil || account.AccountAge(time.Now()) < minAge {
			return types.ErrPermissionDenied("this room requires an older account")
		}
	}
	if room.RequireVerifiedEmail {
		if account == nil || !account.EmailVerified {
			return types.ErrPermissionDenied("this room requires a verified e-mail address")
		}
	}
	return nil
}

// Leave removes the participant row for (room, connection) and its
// presence entry. When the roster empties and the room has no owner, the
// room record is deleted and the media room torn down asynchronously.
func (c *Coordinator) Leave(roomName, connectionId string) (*types.Participant, error) {
	participant, err := c.Store.RemoveParticipant(roomName, connectionId)
	if err != nil {
		return nil, err
	}
	if err := c.Presence.DeleteEntry(connectionId); err != nil {
		c.Logger.Error("could not delete presence entry", "connection", connectionId, "error", err)
	}
	if participant == nil {
		return nil, nil
	}
	deleted, room, err := c.Store.DeleteRoomIfEmpty(roomName)
	if err != nil {
		c.Logger.Error("could not check room for deletion", "room", roomName, "error", err)
		return participant, nil
	}
	if deleted && room.MediaRoomId != "" {
		gateway.CloseRoomAsync(c.Gateway, c.Logger, room.MediaServerId, room.MediaRoomId)
	}
	return participant, nil
}

// Sanitize reconciles the recorded roster against the set of connections
// the transport believes are alive; ghost entries (process restarts,
// network partitions) are removed and returned so the hub can notify the
// room.
func (c *Coordinator) Sanitize(roomName string, alive map[string]struct{}) ([]types.Participant, error) {
	participants, err := c.Store.GetParticipants(roomName)
	if err != nil {
		return nil, err
	}
	removed := make([]types.Participant, 0)
	for _, p := range participants {
		if _, ok := alive[p.ConnectionId]; ok {
			continue
		}
		c.Logger.Warn("removing ghost roster entry", "room", roomName, "connection", p.ConnectionId, "handle", p.Handle)
		if _, err := c.Leave(roomName, p.ConnectionId); err != nil {
			c.Logger.Error("could not remove ghost roster entry", "room", roomName, "connection", p.ConnectionId, "error", err)
			continue
		}
		removed = append(removed, p)
	}
	return removed, nil
}
