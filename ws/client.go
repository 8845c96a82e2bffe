package ws

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/folkengine/goname"
	"github.com/gorilla/websocket"
	"github.com/hovercast/hovercast-coordinator/globals"
	"github.com/hovercast/hovercast-coordinator/moderation"
	"github.com/hovercast/hovercast-coordinator/room"
	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/mitchellh/mapstructure"
)

const sendChannelSize = 1000

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	identity types.Identity
	account  *types.User

	mu          sync.RWMutex
	participant *types.Participant

	limiter  *slidingWindow
	doneChan chan struct{}

	// WaitGroup which keeps track of running read/write loops and write
	// access to Send. If the WaitGroup is done, it is safe to close all
	// channels.
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, identity types.Identity, account *types.User, doneChan chan struct{}) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		identity: identity,
		account:  account,
		limiter:  newSlidingWindow(hub.Cfg.LimitsConfig.FloodLimit(), hub.Cfg.LimitsConfig.FloodInterval()),
		doneChan: doneChan,
	}
}

func (c *Client) snapshot() *types.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participant
}

func (c *Client) setParticipant(p *types.Participant) {
	c.mu.Lock()
	c.participant = p
	c.mu.Unlock()
}

func (c *Client) actor() moderation.Actor {
	role := ""
	if c.account != nil {
		role = c.account.Role
	}
	return moderation.Actor{
		Identity:    c.identity,
		Participant: c.snapshot(),
		Role:        role,
	}
}

// ReadLoop pumps messages from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
		c.Done()
		c.hub.Unregister <- c
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("ws closed unexpectedly", "connection", c.identity.ConnectionId, "error", err)
			}
			return
		}
		if c.hub.Sessions.IsRevoked(c.identity.SessionId) {
			return
		}

		message := types.WebsocketMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			globals.AppLogger.Debug("could not unmarshal ws message", "error", err)
			return
		}

		if c.snapshot() == nil && message.Event != types.MessageTypeJoin {
			c.hub.sendError(c, types.ErrInvalidInput(types.ErrorContextAlert, "join the room first"))
			continue
		}

		switch message.Event {
		case types.MessageTypeJoin:
			if !c.handleJoin(message.Data) {
				return
			}

		case types.MessageTypeLeave:
			return

		case types.MessageTypeChat:
			c.handleChat(message.Data)

		case types.MessageTypePrivateMessage:
			msg := types.PrivateMessage{}
			if !c.decode(message.Data, &msg) {
				continue
			}
			c.dispatch(func(roomDoc *types.Room) (*moderation.Result, error) {
				return c.hub.Moderation.PrivateMessage(c.actor(), roomDoc, msg)
			})

		case types.MessageTypeChangeHandle:
			if !c.allowFlood() {
				continue
			}
			msg := types.HandleMessage{}
			if !c.decode(message.Data, &msg) {
				continue
			}
			c.dispatch(func(roomDoc *types.Room) (*moderation.Result, error) {
				res, err := c.hub.Moderation.ChangeHandle(c.actor(), roomDoc, msg.Handle)
				if err == nil {
					c.updateParticipant(func(p *types.Participant) { p.Handle = msg.Handle })
				}
				return res, err
			})

		case types.MessageTypeChangeColor:
			if !c.allowFlood() {
				continue
			}
			msg := types.ColorMessage{}
			if !c.decode(message.Data, &msg) {
				continue
			}
			c.dispatch(func(roomDoc *types.Room) (*moderation.Result, error) {
				res, err := c.hub.Moderation.ChangeColor(c.actor(), roomDoc, msg.Color)
				if err == nil {
					c.refreshParticipant(roomDoc.Name)
				}
				return res, err
			})

		case types.MessageTypeKick:
			msg := types.TargetMessage{}
			if !c.decode(message.Data, &msg) {
				continue
			}
			c.dispatch(func(roomDoc *types.Room) (*moderation.Result, error) {
				return c.hub.Moderation.Kick(c.actor(), roomDoc, msg.TargetListId)
			})

		case types.MessageTypeSilence:
			msg := types.TargetMessage{}
			if !c.decode(message.Data, &msg) {
				continue
			}
			c.dispatch(func(roomDoc *types.Room) (*moderation.Result, error) {
				return c.hub.Moderation.Silence(c.actor(), roomDoc, msg.TargetListId)
			})

		case types.MessageTypeCloseBroadcast:
			msg := types.TargetMessage{}
			if !c.decode(message.Data, &msg) {
				continue
			}
			c.dispatch(func(roomDoc *types.Room) (*moderation.Result, error) {
				return c.hub.Moderation.CloseBroadcast(c.actor(), roomDoc, msg.TargetListId)
			})

		case types.MessageTypeClearFeed:
			c.dispatch(func(roomDoc *types.Room) (*moderation.Result, error) {
				return c.hub.Moderation.ClearFeed(c.actor(), roomDoc)
			})

		case types.MessageTypeFetchBanlist:
			c.dispatch(func(roomDoc *types.Room) (*moderation.Result, error) {
				return c.hub.Moderation.Banlist(c.actor(), roomDoc)
			})

		default:
			c.hub.sendError(c, types.ErrInvalidInput(types.ErrorContextAlert, "unknown message type"))
		}
	}
}

// dispatch loads the room fresh, runs one handler and delivers its result.
// Handler errors go back to this connection only.
func (c *Client) dispatch(handler func(*types.Room) (*moderation.Result, error)) {
	roomDoc, err := c.hub.loadRoom()
	if err != nil {
		c.hub.sendError(c, err)
		return
	}
	res, err := handler(roomDoc)
	if err != nil {
		c.hub.sendError(c, err)
		return
	}
	c.hub.deliver(c, res)
}

func (c *Client) decode(raw json.RawMessage, out interface{}) bool {
	payload := make(map[string]interface{})
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.hub.sendError(c, types.ErrInvalidInput(types.ErrorContextAlert, "malformed message payload"))
		return false
	}
	if err := mapstructure.WeakDecode(payload, out); err != nil {
		c.hub.sendError(c, types.ErrInvalidInput(types.ErrorContextAlert, "malformed message payload"))
		return false
	}
	return true
}

// handleJoin admits this connection to the room. A failed admission is
// answered with an error and the connection is closed; false tells the
// read loop to exit.
func (c *Client) handleJoin(raw json.RawMessage) bool {
	if c.snapshot() != nil {
		c.hub.sendError(c, types.ErrConflict("already joined"))
		return true
	}
	joinMsg := types.JoinMessage{}
	if !c.decode(raw, &joinMsg) {
		return true
	}
	handle := joinMsg.Handle
	if handle == "" {
		handle = guestHandle(c.hub.Cfg.LimitsConfig.HandleMaxLen())
	}
	participant, roomDoc, err := c.hub.Coordinator.Join(room.JoinRequest{
		RoomName: c.hub.roomName,
		Handle:   handle,
		Password: joinMsg.Password,
		Identity: c.identity,
		Account:  c.account,
	})
	if err != nil {
		c.hub.sendError(c, err)
		return false
	}
	c.setParticipant(participant)
	c.hub.setTopic(roomDoc.Topic)
	c.hub.Register <- c
	c.sendSelfInfo(participant)
	return true
}

// sendSelfInfo answers a successful join with the roster snapshot, the
// joiner's own entry and a media access token.
func (c *Client) sendSelfInfo(participant *types.Participant) {
	info, err := c.hub.roomInfo()
	if err != nil {
		globals.AppLogger.Error("could not build room info", "room", c.hub.roomName, "error", err)
		return
	}
	info.Self = participant
	token, err := c.hub.Moderation.Gateway.CreateToken(time.Now())
	if err != nil {
		globals.AppLogger.Error("could not create media token", "error", err)
	} else {
		info.MediaToken = token
	}
	data, err := marshalNotice(types.ActorNotice(types.EventRoomInfo, info))
	if err != nil {
		globals.AppLogger.Error("could not marshal room info", "error", err)
		return
	}
	c.hub.send(c, data)
}

// allowFlood passes the message through the per-connection sliding window,
// shared between chat and the handle/color mutations.
func (c *Client) allowFlood() bool {
	if c.limiter.Allow(time.Now()) {
		return true
	}
	c.hub.sendError(c, types.ErrInvalidInput(types.ErrorContextChat, "you are sending messages too fast"))
	return false
}

// handleChat runs the chat path: flood gate, silence gate, then broadcast.
// Messages from silenced identities are dropped without any reply.
func (c *Client) handleChat(raw json.RawMessage) {
	if !c.allowFlood() {
		return
	}
	if !c.hub.Moderation.CanChat(c.identity) {
		return
	}
	chatMsg := types.ChatMessage{}
	if !c.decode(raw, &chatMsg) {
		return
	}
	if strings.TrimSpace(chatMsg.Message) == "" {
		return
	}
	participant := c.snapshot()
	chatMsg.ListId = participant.ListId
	chatMsg.Handle = participant.Handle
	chatMsg.Color = participant.Color
	chatMsg.Timestamp = time.Now()
	if err := chatMsg.CreateId(); err != nil {
		globals.AppLogger.Error("could not hash chat message", "error", err)
		return
	}
	c.hub.BroadcastChat <- outboundChat{message: &chatMsg, sender: participant}
}

// updateParticipant swaps in an updated copy; snapshots handed out earlier
// stay immutable.
func (c *Client) updateParticipant(update func(*types.Participant)) {
	c.mu.Lock()
	if c.participant != nil {
		updated := *c.participant
		update(&updated)
		c.participant = &updated
	}
	c.mu.Unlock()
}

// refreshParticipant reloads this connection's roster row after a mutation
// the handler performed on the store side (f.e. a color change).
func (c *Client) refreshParticipant(roomName string) {
	current := c.snapshot()
	if current == nil {
		return
	}
	updated, err := c.hub.Moderation.Store.FindParticipantByListId(roomName, current.ListId)
	if err != nil {
		globals.AppLogger.Error("could not refresh participant", "connection", c.identity.ConnectionId, "error", err)
		return
	}
	c.setParticipant(updated)
}

// guestHandle generates a handle for guests who did not pick one,
// flattened to the allowed handle charset and length.
func guestHandle(maxLen int) string {
	name := goname.New(goname.FantasyMap).FirstLast()
	flat := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			flat = append(flat, r)
		case r == ' ':
			flat = append(flat, '-')
		}
	}
	handle := string(flat)
	if handle == "" {
		handle = "guest"
	}
	if len(handle) > maxLen {
		handle = handle[:maxLen]
	}
	return handle
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case <-c.doneChan:
			return
		default:
		}
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
