package moderation

import (
	"time"

	"github.com/google/uuid"
	"github.com/hovercast/hovercast-coordinator/gateway"
	"github.com/hovercast/hovercast-coordinator/permission"
	"github.com/hovercast/hovercast-coordinator/types"
)

// Kick removes a participant from the room: session invalidation, one
// targeted roster delete, then the notices. The transport closes the
// target connection afterwards.
func (s *Service) Kick(actor Actor, room *types.Room, targetListId string) (*Result, error) {
	if err := s.authorize(actor, permission.ActionKick, room); err != nil {
		return nil, err
	}
	target, err := s.findTarget(actor, room, targetListId)
	if err != nil {
		return nil, err
	}
	if err := untouchable(target); err != nil {
		return nil, err
	}

	s.Sessions.Invalidate(target.SessionId)
	removed, err := s.Store.RemoveParticipant(room.Name, target.ConnectionId)
	if err != nil {
		return nil, err
	}
	if removed == nil {
		// the target left while the kick was in flight
		return nil, types.ErrNotFound("target not found")
	}
	if err := s.Presence.DeleteEntry(target.ConnectionId); err != nil {
		s.Logger.Error("could not delete presence entry", "connection", target.ConnectionId, "error", err)
	}

	res := &Result{TargetConnectionId: target.ConnectionId, DisconnectTarget: true}
	actorHandle := handleOf(actor)
	res.add(types.RoomStatus(target.Handle + " was kicked by " + actorHandle))
	res.add(types.RoomNotice(types.EventRoomDisconnect, types.DisconnectMessage{User: *removed}))
	return res, nil
}

// BanRequest is the admin/moderation surface's payload for a site ban.
// Authorization happens upstream (admin API, CLI), not in the permission
// engine: a site ban is a cross-room operation.
type BanRequest struct {
	AccountId         string `json:"account_id" mapstructure:"account_id"`
	SessionId         string `json:"session_id" mapstructure:"session_id"`
	IP                string `json:"ip" mapstructure:"ip"`
	RestrictBroadcast bool   `json:"restrict_broadcast" mapstructure:"restrict_broadcast"`
	RestrictJoin      bool   `json:"restrict_join" mapstructure:"restrict_join"`
	DurationHours     int    `json:"duration_hours" mapstructure:"duration_hours"`
	Reason            string `json:"reason" mapstructure:"reason"`
	ReportId          string `json:"report_id" mapstructure:"report_id"`
	CreatedBy         string `json:"created_by" mapstructure:"created_by"`
}

// SiteBan validates and persists a ban record. If the target is presently
// connected to the given room and the ban restricts joining, the kick
// path disconnects them immediately. All validation happens before any
// persistence.
func (s *Service) SiteBan(req BanRequest, room *types.Room) (*Result, error) {
	if req.AccountId == "" && req.SessionId == "" && req.IP == "" {
		return nil, types.ErrInvalidInput(types.ErrorContextAlert, "ban target requires an account id, session id or ip")
	}
	if req.Reason == "" {
		return nil, types.ErrInvalidInput(types.ErrorContextAlert, "ban reason is required")
	}
	if !req.RestrictBroadcast && !req.RestrictJoin {
		return nil, types.ErrInvalidInput(types.ErrorContextAlert, "ban requires at least one restriction")
	}

	ban := types.Ban{
		Id:                uuid.New().String(),
		RestrictBroadcast: req.RestrictBroadcast,
		RestrictJoin:      req.RestrictJoin,
		ExpiresAt:         time.Now().Add(time.Duration(req.DurationHours) * time.Hour),
		Reason:            req.Reason,
		CreatedBy:         req.CreatedBy,
		CreatedAt:         time.Now(),
	}
	if req.AccountId != "" {
		ban.AccountId = &req.AccountId
	}
	if req.SessionId != "" {
		ban.SessionId = &req.SessionId
	}
	if req.IP != "" {
		ban.IP = &req.IP
	}
	if req.ReportId != "" {
		ban.ReportId = &req.ReportId
	}
	if err := s.Store.StoreBan(ban); err != nil {
		return nil, err
	}

	if req.ReportId != "" {
		if err := s.Store.ResolveReport(req.ReportId, req.CreatedBy); err != nil {
			// the ban stands even when the report link is stale
			s.Logger.Error("could not resolve report", "report", req.ReportId, "error", err)
		}
	}

	res := &Result{}
	if room == nil || !req.RestrictJoin {
		return res, nil
	}
	target := findBanTarget(room, req)
	if target == nil {
		return res, nil
	}
	s.Sessions.Invalidate(target.SessionId)
	removed, err := s.Store.RemoveParticipant(room.Name, target.ConnectionId)
	if err != nil {
		return nil, err
	}
	if err := s.Presence.DeleteEntry(target.ConnectionId); err != nil {
		s.Logger.Error("could not delete presence entry", "connection", target.ConnectionId, "error", err)
	}
	res.TargetConnectionId = target.ConnectionId
	res.DisconnectTarget = true
	if removed != nil {
		res.add(types.RoomNotice(types.EventRoomUserBanned, types.DisconnectMessage{User: *removed}))
	}
	res.add(types.TargetNotice(types.EventSelfBanned, types.StatusMessage{Message: req.Reason, Timestamp: time.Now()}))
	return res, nil
}

func findBanTarget(room *types.Room, req BanRequest) *types.Participant {
	for i := range room.Users {
		p := &room.Users[i]
		if req.AccountId != "" && p.AccountId != nil && *p.AccountId == req.AccountId {
			return p
		}
		if req.SessionId != "" && p.SessionId == req.SessionId {
			return p
		}
	}
	return nil
}

// Silence writes a short-TTL marker in the presence layer; the chat path
// silently drops messages from silenced identities without disconnecting
// them. The room notice deliberately does not name the acting moderator.
func (s *Service) Silence(actor Actor, room *types.Room, targetListId string) (*Result, error) {
	if err := s.authorize(actor, permission.ActionMute, room); err != nil {
		return nil, err
	}
	target, err := s.findTarget(actor, room, targetListId)
	if err != nil {
		return nil, err
	}
	if err := untouchable(target); err != nil {
		return nil, err
	}

	if err := s.Presence.Silence(types.IdentityOf(target).Key(), 0); err != nil {
		return nil, err
	}

	res := &Result{TargetConnectionId: target.ConnectionId}
	res.add(types.TargetNotice(types.EventRoomStatus, types.StatusMessage{
		Message:   "you have been silenced",
		Timestamp: time.Now(),
	}))
	res.add(types.RoomStatus(target.Handle + " has been silenced"))
	return res, nil
}

// CloseBroadcast terminates a participant's outbound media stream. The
// gateway call is fire-and-forget; the roster flag is what the
// application trusts.
func (s *Service) CloseBroadcast(actor Actor, room *types.Room, targetListId string) (*Result, error) {
	if err := s.authorize(actor, permission.ActionCloseBroadcast, room); err != nil {
		return nil, err
	}
	target, err := s.findTarget(actor, room, targetListId)
	if err != nil {
		return nil, err
	}
	if !target.IsBroadcasting {
		return nil, types.ErrConflict("target is not broadcasting")
	}

	if err := s.Store.SetBroadcasting(room.Name, target.ListId, false); err != nil {
		return nil, err
	}
	gateway.CloseBroadcastAsync(s.Gateway, s.Logger, room.MediaServerId, room.MediaRoomId, target.ListId)

	res := &Result{TargetConnectionId: target.ConnectionId}
	res.add(types.TargetNotice(types.EventSelfCloseBroadcast, types.StatusMessage{
		Message:   "your broadcast was closed by " + handleOf(actor),
		Timestamp: time.Now(),
	}))
	res.add(types.RoomStatus(target.Handle + "'s broadcast was closed"))
	return res, nil
}

// ClearFeed is stateless: it only triggers a room-wide clear event and a
// status notice naming the moderator.
func (s *Service) ClearFeed(actor Actor, room *types.Room) (*Result, error) {
	if err := s.authorize(actor, permission.ActionClearFeed, room); err != nil {
		return nil, err
	}
	res := &Result{}
	res.add(types.RoomNotice(types.EventRoomClearFeed, struct{}{}))
	res.add(types.RoomStatus("the chat feed was cleared by " + handleOf(actor)))
	return res, nil
}

func handleOf(actor Actor) string {
	if actor.Participant != nil {
		return actor.Participant.Handle
	}
	return "a moderator"
}
