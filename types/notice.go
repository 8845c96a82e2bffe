package types

import "time"

// NoticeScope selects the recipients of a notice produced by a moderation
// handler.
type NoticeScope int

const (
	// ScopeActor delivers to the acting connection only.
	ScopeActor NoticeScope = iota + 1
	// ScopeTarget delivers to the targeted connection only.
	ScopeTarget
	// ScopeRoom delivers to the room broadcast group.
	ScopeRoom
)

// Notice is one outbound message a handler wants delivered. Handlers never
// touch the transport; they return notices and the fan-out adapter in ws
// turns them into websocket frames.
type Notice struct {
	Scope NoticeScope
	Event string
	Data  interface{}
}

func RoomNotice(event string, data interface{}) Notice {
	return Notice{Scope: ScopeRoom, Event: event, Data: data}
}

func ActorNotice(event string, data interface{}) Notice {
	return Notice{Scope: ScopeActor, Event: event, Data: data}
}

func TargetNotice(event string, data interface{}) Notice {
	return Notice{Scope: ScopeTarget, Event: event, Data: data}
}

// RoomStatus is shorthand for the ubiquitous room::status notice.
func RoomStatus(message string) Notice {
	return RoomNotice(EventRoomStatus, StatusMessage{Message: message, Timestamp: time.Now()})
}
