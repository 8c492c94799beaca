package core

import (
	"encoding/json"
	"time"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventBroadcast is an application event published to a room.
	EventBroadcast EventKind = iota
	// EventRoomJoined confirms a join to the requesting client.
	EventRoomJoined
	// EventRoomLeft confirms a leave to the requesting client.
	EventRoomLeft
	// EventPong answers a ping.
	EventPong
	// EventError notifies clients about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	ID        int64 // store id for broadcasts, 0 if not persisted
	Room      string
	Type      string // application event type, e.g. "schedule.update"
	Data      json.RawMessage
	CreatedAt time.Time
	Error     *CoreError
}
