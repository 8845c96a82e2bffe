package moderation

import (
	"encoding/json"
	"time"

	"github.com/hovercast/hovercast-coordinator/permission"
	"github.com/hovercast/hovercast-coordinator/presence"
	"github.com/hovercast/hovercast-coordinator/room"
	"github.com/hovercast/hovercast-coordinator/types"
)

// ChangeHandle renames the acting participant. Validation happens before
// any mutation; a taken handle is a Conflict.
func (s *Service) ChangeHandle(actor Actor, roomDoc *types.Room, newHandle string) (*Result, error) {
	if actor.Participant == nil {
		return nil, types.ErrNotFound("you are not in this room")
	}
	if err := room.ValidateHandle(newHandle, s.Cfg.LimitsConfig.HandleMaxLen()); err != nil {
		return nil, err
	}
	if err := s.Store.UpdateParticipantHandle(roomDoc.Name, actor.Identity.ConnectionId, newHandle); err != nil {
		return nil, err
	}
	s.refreshPresence(actor, func(e *presence.Entry) { e.Handle = newHandle })

	res := &Result{}
	res.add(types.RoomNotice(types.EventRoomHandleChange, types.HandleChangeMessage{
		ListId: actor.Participant.ListId,
		Handle: newHandle,
	}))
	return res, nil
}

// ChangeColor assigns the requested palette color when free, otherwise a
// random free one.
func (s *Service) ChangeColor(actor Actor, roomDoc *types.Room, requested string) (*Result, error) {
	if actor.Participant == nil {
		return nil, types.ErrNotFound("you are not in this room")
	}
	pick := func(used []string) string {
		if requested != "" && room.ValidColor(requested) {
			taken := false
			for _, c := range used {
				if c == requested {
					taken = true
					break
				}
			}
			if !taken {
				return requested
			}
		}
		return room.PickColor(used)
	}
	color, err := s.Store.RecolorParticipant(roomDoc.Name, actor.Identity.ConnectionId, pick)
	if err != nil {
		return nil, err
	}
	s.refreshPresence(actor, func(e *presence.Entry) { e.Color = color })

	res := &Result{}
	res.add(types.RoomStatus(actor.Participant.Handle + " is now " + color))
	return res, nil
}

// PrivateMessage routes a message to a single participant. The presence
// cache resolves the target connection; on a miss the roster is the
// fallback of record and the cache is repopulated from it.
func (s *Service) PrivateMessage(actor Actor, roomDoc *types.Room, msg types.PrivateMessage) (*Result, error) {
	if actor.Participant == nil {
		return nil, types.ErrNotFound("you are not in this room")
	}

	connectionId, entry, ok, err := s.Presence.FindByListId(msg.TargetListId)
	if err != nil {
		return nil, err
	}
	if ok && entry.RoomName != roomDoc.Name {
		ok = false
	}
	var target *types.Participant
	if ok {
		target = &types.Participant{
			ConnectionId: connectionId,
			ListId:       entry.ListId,
			Handle:       entry.Handle,
		}
		if entry.AccountId != "" {
			accountId := entry.AccountId
			target.AccountId = &accountId
		}
	} else {
		// cache miss: scan the roster and repopulate the cache
		target = roomDoc.FindByListId(msg.TargetListId)
		if target == nil {
			return nil, types.ErrNotFound("target not found")
		}
		connectionId = target.ConnectionId
		rebuilt := presence.Entry{
			Handle:   target.Handle,
			Color:    target.Color,
			ListId:   target.ListId,
			RoomName: roomDoc.Name,
		}
		if target.AccountId != nil {
			rebuilt.AccountId = *target.AccountId
		}
		if err := s.Presence.SetEntry(connectionId, rebuilt); err != nil {
			s.Logger.Error("could not repopulate presence entry", "connection", connectionId, "error", err)
		}
		entry = rebuilt
	}

	if target.AccountId != nil {
		account := &types.User{Id: *target.AccountId}
		if err := s.Store.GetUser(account); err == nil && !account.AllowPrivateMessages {
			return nil, types.ErrPermissionDenied("target does not accept private messages")
		}
	}

	msg.FromListId = actor.Participant.ListId
	msg.FromHandle = actor.Participant.Handle
	msg.Timestamp = time.Now()

	res := &Result{TargetConnectionId: connectionId}
	res.add(types.ActorNotice(types.EventRoomPrivateMessage, msg))
	res.add(types.TargetNotice(types.EventRoomPrivateMessage, msg))

	if entry.PushEndpoint != "" {
		payload, err := json.Marshal(msg)
		if err == nil {
			res.Push = &PushNotification{
				Endpoint: entry.PushEndpoint,
				Keys:     entry.PushKeys,
				Payload:  payload,
			}
		}
	}
	return res, nil
}

// Banlist returns the ban records to the acting connection.
func (s *Service) Banlist(actor Actor, roomDoc *types.Room) (*Result, error) {
	if err := s.authorize(actor, permission.ActionViewBanlist, roomDoc); err != nil {
		return nil, err
	}
	bans, err := s.Store.GetBans()
	if err != nil {
		return nil, err
	}
	res := &Result{}
	res.add(types.ActorNotice(types.EventClientBanlist, types.BanlistMessage{Bans: bans}))
	return res, nil
}

// CanChat is the silence gate consulted by the chat path. Silenced
// identities are dropped silently, never disconnected.
func (s *Service) CanChat(id types.Identity) bool {
	silenced, err := s.Presence.IsSilenced(id.Key())
	if err != nil {
		s.Logger.Error("could not check silence marker", "key", id.Key(), "error", err)
		return true
	}
	return !silenced
}

func (s *Service) refreshPresence(actor Actor, update func(*presence.Entry)) {
	connectionId := actor.Identity.ConnectionId
	entry, ok, err := s.Presence.GetEntry(connectionId)
	if err != nil || !ok {
		if err != nil {
			s.Logger.Error("could not read presence entry", "connection", connectionId, "error", err)
		}
		return
	}
	update(&entry)
	if err := s.Presence.SetEntry(connectionId, entry); err != nil {
		s.Logger.Error("could not refresh presence entry", "connection", connectionId, "error", err)
	}
}
