package types

import (
	"encoding/json"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// Inbound message names (client to coordinator).
const (
	MessageTypeJoin           = "join"
	MessageTypeLeave          = "leave"
	MessageTypeChat           = "sendMessage"
	MessageTypePrivateMessage = "privateMessage"
	MessageTypeChangeHandle   = "changeHandle"
	MessageTypeChangeColor    = "changeColor"
	MessageTypeKick           = "kickUser"
	MessageTypeSilence        = "silenceUser"
	MessageTypeCloseBroadcast = "closeBroadcast"
	MessageTypeClearFeed      = "clearFeed"
	MessageTypeFetchBanlist   = "fetchBanlist"
)

// Outbound event names (coordinator to client).
const (
	EventRoomStatus         = "room::status"
	EventRoomHandleChange   = "room::handleChange"
	EventRoomDisconnect     = "room::disconnect"
	EventRoomUserBanned     = "room::userbanned"
	EventRoomClearFeed      = "room::clearFeed"
	EventRoomMessage        = "room::message"
	EventRoomPrivateMessage = "room::privateMessage"
	EventRoomInfo           = "room::info"
	EventClientError        = "client::error"
	EventClientBanlist      = "client::banlist"
	EventSelfBanned         = "self::banned"
	EventSelfCloseBroadcast = "self::closeBroadcast"
)

// JSON-serialized WebsocketMessage is what is actually sent via the
// Websocket connection, in both directions.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func NewWebsocketMessage(event string, data interface{}) (*WebsocketMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &WebsocketMessage{Event: event, Data: raw}, nil
}

// JoinMessage is the first message a client sends after the upgrade.
type JoinMessage struct {
	Handle   string `json:"handle" mapstructure:"handle"`
	Password string `json:"password" mapstructure:"password"`
}

// ChatMessage is a room chat message. Filter optionally restricts the
// receiving clients via an expr expression, evaluated per client.
type ChatMessage struct {
	Id        string    `json:"id" hash:"ignore" mapstructure:"-"`
	ListId    string    `json:"list_id" mapstructure:"-"` // sender, outgoing
	Handle    string    `json:"handle" mapstructure:"-"`
	Color     string    `json:"color" mapstructure:"-"`
	Timestamp time.Time `json:"timestamp" mapstructure:"-"`
	Message   string    `json:"message" mapstructure:"message"`
	Filter    string    `json:"filter" hash:"ignore" mapstructure:"filter"`
}

// CreateId sets the content-derived id of the message, used by clients to
// deduplicate redeliveries.
func (m *ChatMessage) CreateId() error {
	hash, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	m.Id = ChatMessageIdPrefix + hashToString(hash)
	return nil
}

const ChatMessageIdPrefix = "msg-"

const hexDigits = "0123456789abcdef"

func hashToString(h uint64) string {
	b := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		b[i] = hexDigits[h&0xf]
		h >>= 4
	}
	return string(b)
}

// PrivateMessage addresses a single participant by its list id.
type PrivateMessage struct {
	TargetListId string    `json:"target_list_id" mapstructure:"target_list_id"`
	FromListId   string    `json:"from_list_id" mapstructure:"-"`
	FromHandle   string    `json:"from_handle" mapstructure:"-"`
	Message      string    `json:"message" mapstructure:"message"`
	Timestamp    time.Time `json:"timestamp" mapstructure:"-"`
}

// TargetMessage is the payload of the moderation actions that only name a
// target (kickUser, silenceUser, closeBroadcast).
type TargetMessage struct {
	TargetListId string `json:"target_list_id" mapstructure:"target_list_id"`
}

type HandleMessage struct {
	Handle string `json:"handle" mapstructure:"handle"`
}

type ColorMessage struct {
	Color string `json:"color" mapstructure:"color"`
}

type StatusMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type HandleChangeMessage struct {
	ListId string `json:"list_id"`
	Handle string `json:"handle"`
}

type DisconnectMessage struct {
	User Participant `json:"user"`
}

// ErrorMessage is only ever sent to the acting connection. Context tells
// the client where to surface the error.
type ErrorMessage struct {
	Context string `json:"context"` // ErrorContextBanner, -Chat or -Alert
	Message string `json:"message"`
}

type BanlistMessage struct {
	Bans []Ban `json:"bans"`
}

// InfoMessage is the roster snapshot sent on join and roster changes.
type InfoMessage struct {
	RoomName   string        `json:"room_name"`
	Topic      string        `json:"topic"`
	Users      []Participant `json:"users"`
	Self       *Participant  `json:"self,omitempty"`
	MediaToken string        `json:"media_token,omitempty"`
}
