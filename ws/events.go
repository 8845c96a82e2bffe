package ws

import (
	"encoding/json"

	"github.com/hovercast/hovercast-coordinator/globals"
	"github.com/hovercast/hovercast-coordinator/moderation"
	"github.com/hovercast/hovercast-coordinator/types"
)

// deliver fans a handler result out to the transport: actor-scoped notices
// go to the acting connection, target-scoped ones to the connection named
// in the result, room-scoped ones to the broadcast group. When the result
// demands it, the target connection is closed afterwards.
func (h *Hub) deliver(actor *Client, res *moderation.Result) {
	if res == nil {
		return
	}
	for _, notice := range res.Notices {
		data, err := marshalNotice(notice)
		if err != nil {
			globals.AppLogger.Error("could not marshal notice", "event", notice.Event, "error", err)
			continue
		}
		switch notice.Scope {
		case types.ScopeActor:
			if actor != nil {
				h.send(actor, data)
			}
		case types.ScopeTarget:
			if target := h.clientByConnection(res.TargetConnectionId); target != nil {
				h.send(target, data)
			}
		case types.ScopeRoom:
			h.Broadcast <- data
		}
	}
	if res.Push != nil && h.Moderation.Push != nil && h.clientByConnection(res.TargetConnectionId) == nil {
		push := res.Push
		go func() {
			if err := h.Moderation.Push.Send(push.Endpoint, push.Keys, push.Payload); err != nil {
				globals.AppLogger.Error("could not push notification", "endpoint", push.Endpoint, "error", err)
			}
		}()
	}
	if res.DisconnectTarget {
		h.disconnectConnection(res.TargetConnectionId)
	}
}

// DeliverExternal delivers a handler result that has no acting connection
// (admin API, CLI): actor-scoped notices are dropped, everything else fans
// out as usual.
func (h *Hub) DeliverExternal(res *moderation.Result) {
	h.deliver(nil, res)
}

func marshalNotice(notice types.Notice) ([]byte, error) {
	msg, err := types.NewWebsocketMessage(notice.Event, notice.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// sendError surfaces a handler error to the acting connection only; no
// handler error is ever broadcast or fatal to the connection.
func (h *Hub) sendError(actor *Client, err error) {
	if err == nil || actor == nil {
		return
	}
	errMsg := types.ErrorMessage{
		Context: types.ErrorContextAlert,
		Message: "something went wrong",
	}
	if typed := types.AsError(err); typed != nil && typed.Kind != types.KindUnexpected {
		errMsg.Context = typed.Context
		errMsg.Message = typed.Message
	} else {
		globals.AppLogger.Error("unexpected handler error", "room", h.roomName, "error", err)
	}
	data, err := marshalNotice(types.ActorNotice(types.EventClientError, errMsg))
	if err != nil {
		globals.AppLogger.Error("could not marshal error message", "error", err)
		return
	}
	h.send(actor, data)
}

// send writes to a client's send channel under the read lock, so the
// unregister path cannot close the channel concurrently. A client that is
// no longer registered is skipped.
func (h *Hub) send(c *Client, data []byte) {
	h.RLock()
	if _, ok := h.clients[c]; ok {
		c.Add(1)
		go func() {
			defer c.Done()
			c.Send <- data
		}()
	}
	h.RUnlock()
}

func (h *Hub) clientByConnection(connectionId string) *Client {
	if connectionId == "" {
		return nil
	}
	h.RLock()
	defer h.RUnlock()
	return h.byConn[connectionId]
}

func (h *Hub) disconnectConnection(connectionId string) {
	if target := h.clientByConnection(connectionId); target != nil {
		h.Unregister <- target
	}
}
