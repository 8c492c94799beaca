package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandPing asks for a pong.
	CommandPing
)

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	Room string
}
