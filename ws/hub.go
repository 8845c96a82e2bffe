// Package ws is the websocket transport: one hub per room fanning out
// frames to the registered clients, one client per connection pumping
// reads and writes. Handlers live in room and moderation; this package
// only decodes inbound frames, calls the handlers and delivers their
// results.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/antonmedv/expr/vm"
	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/globals"
	"github.com/hovercast/hovercast-coordinator/moderation"
	"github.com/hovercast/hovercast-coordinator/room"
	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/robfig/cron/v3"
)

const (
	maxMessageSize       = 4096
	pongWait             = 2 * time.Minute
	pingPeriod           = time.Minute
	writeWait            = 10 * time.Second
	broadcastChannelSize = 1000
)

// outboundChat pairs a chat message with a snapshot of its sender, needed
// as the filter environment when the message carries a target filter.
type outboundChat struct {
	message *types.ChatMessage
	sender  *types.Participant
}

type Hub struct {
	// there is one hub per room
	roomName string

	// Registered clients.
	clients map[*Client]struct{}
	byConn  map[string]*Client

	// Broadcast raw frames to all clients.
	Broadcast chan []byte

	// BroadcastChat delivers a chat message per-client, honoring its
	// target filter.
	BroadcastChat chan outboundChat

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	Coordinator *room.Coordinator
	Moderation  *moderation.Service
	Sessions    *SessionRegistry
	Cfg         *config.Config

	filters *filterCache

	topicMu   sync.RWMutex
	roomTopic string

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(roomName string, cfg *config.Config, coordinator *room.Coordinator, mod *moderation.Service, sessions *SessionRegistry) (*Hub, error) {
	filters, err := newFilterCache()
	if err != nil {
		return nil, err
	}
	return &Hub{
		roomName:      roomName,
		clients:       make(map[*Client]struct{}),
		byConn:        make(map[string]*Client),
		Broadcast:     make(chan []byte, broadcastChannelSize),
		BroadcastChat: make(chan outboundChat, broadcastChannelSize),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		Coordinator:   coordinator,
		Moderation:    mod,
		Sessions:      sessions,
		Cfg:           cfg,
		filters:       filters,
	}, nil
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

func (h *Hub) topic() string {
	h.topicMu.RLock()
	defer h.topicMu.RUnlock()
	return h.roomTopic
}

func (h *Hub) setTopic(topic string) {
	h.topicMu.Lock()
	h.roomTopic = topic
	h.topicMu.Unlock()
}

// loadRoom fetches the room with its roster and moderator list; handlers
// always work on a fresh load, never on a cached snapshot.
func (h *Hub) loadRoom() (*types.Room, error) {
	roomDoc := &types.Room{Name: h.roomName}
	if err := h.Moderation.Store.GetRoom(roomDoc); err != nil {
		return nil, err
	}
	h.setTopic(roomDoc.Topic)
	return roomDoc, nil
}

// Run is the main hub event loop handling register, unregister and
// broadcast events. The roster reconciliation sweep runs on the
// configured cron schedule for as long as the hub lives.
func (h *Hub) Run() {
	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := cronRunner.AddFunc(h.Cfg.SanitizeConfig.Spec(), h.sanitize)
	if err != nil {
		globals.AppLogger.Error("could not schedule sanitize sweep", "room", h.roomName, "error", err)
	}
	defer cronRunner.Stop()
	cronRunner.Start()
	for {
		select {
		case client := <-h.Register:
			h.Lock()
			h.clients[client] = struct{}{}
			h.byConn[client.identity.ConnectionId] = client
			h.Unlock()
			go h.SendInfo()

		case client := <-h.Unregister:
			go func() {
				h.RLock()
				if _, ok := h.clients[client]; ok {
					h.RUnlock()

					h.Lock()
					delete(h.clients, client)
					delete(h.byConn, client.identity.ConnectionId)
					client.conn.Close()
					// wait for all loops and write operations to be
					// finished, then it is safe to close the send channel
					client.Wait()
					close(client.Send)
					h.Unlock()

					left, err := h.Coordinator.Leave(h.roomName, client.identity.ConnectionId)
					if err != nil {
						globals.AppLogger.Error("could not remove participant", "room", h.roomName, "connection", client.identity.ConnectionId, "error", err)
					}
					if left != nil {
						h.broadcastNotice(types.RoomNotice(types.EventRoomDisconnect, types.DisconnectMessage{User: *left}))
					}
					go h.SendInfo()
				} else {
					h.RUnlock()
					client.conn.Close()
				}
			}()

		case message := <-h.Broadcast:
			go func() {
				var wg sync.WaitGroup
				h.RLock()
				for client := range h.clients {
					wg.Add(1)
					client.Add(1)
					go func(c *Client) {
						defer wg.Done()
						defer c.Done()
						c.Send <- message
					}(client)
				}
				wg.Wait()
				h.RUnlock()
			}()

		case chat := <-h.BroadcastChat:
			prog, err := h.compileFilter(chat.message.Filter)
			if err != nil {
				globals.AppLogger.Error("could not compile filter", "filter", chat.message.Filter, "error", err)
			}
			data, err := marshalNotice(types.RoomNotice(types.EventRoomMessage, chat.message))
			if err != nil {
				globals.AppLogger.Error("could not marshal chat message", "error", err)
				continue
			}
			go func() {
				var wg sync.WaitGroup
				h.RLock()
				for client := range h.clients {
					if !client.runFilterMessage(chat.message, chat.sender, prog) {
						continue
					}
					wg.Add(1)
					client.Add(1)
					go func(c *Client) {
						defer wg.Done()
						defer c.Done()
						c.Send <- data
					}(client)
				}
				wg.Wait()
				h.RUnlock()
			}()
		}
	}
}

func (h *Hub) compileFilter(src string) (*vm.Program, error) {
	if src == "" {
		return nil, nil
	}
	return h.filters.compile(src)
}

// sanitize reconciles the recorded roster against the connections this hub
// actually holds.
func (h *Hub) sanitize() {
	alive := make(map[string]struct{})
	h.RLock()
	for connectionId := range h.byConn {
		alive[connectionId] = struct{}{}
	}
	h.RUnlock()
	removed, err := h.Coordinator.Sanitize(h.roomName, alive)
	if err != nil {
		globals.AppLogger.Error("could not sanitize roster", "room", h.roomName, "error", err)
		return
	}
	for _, p := range removed {
		h.broadcastNotice(types.RoomNotice(types.EventRoomDisconnect, types.DisconnectMessage{User: p}))
	}
	if len(removed) > 0 {
		h.SendInfo()
	}
}

func (h *Hub) broadcastNotice(notice types.Notice) {
	data, err := marshalNotice(notice)
	if err != nil {
		globals.AppLogger.Error("could not marshal notice", "event", notice.Event, "error", err)
		return
	}
	h.Broadcast <- data
}

// SendInfo broadcasts the current roster snapshot to all clients.
func (h *Hub) SendInfo() {
	info, err := h.roomInfo()
	if err != nil {
		globals.AppLogger.Error("could not build room info", "room", h.roomName, "error", err)
		return
	}
	msg, err := types.NewWebsocketMessage(types.EventRoomInfo, info)
	if err != nil {
		globals.AppLogger.Error("could not marshal room info", "error", err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		globals.AppLogger.Error("could not marshal room info", "error", err)
		return
	}
	h.Broadcast <- data
}

func (h *Hub) roomInfo() (types.InfoMessage, error) {
	participants, err := h.Moderation.Store.GetParticipants(h.roomName)
	if err != nil {
		return types.InfoMessage{}, err
	}
	return types.InfoMessage{
		RoomName: h.roomName,
		Topic:    h.topic(),
		Users:    participants,
	}, nil
}
