package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the frame exchanged in both directions over /ws.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	// TypePing is the heartbeat sent by clients.
	TypePing = "ping"
	// TypePong answers a ping.
	TypePong = "pong"
	// TypeConnected is the application-level handshake sent once after accept.
	TypeConnected = "connected"
	// TypeJoinRoom asks the server to subscribe the connection to a room.
	TypeJoinRoom = "join_room"
	// TypeLeaveRoom asks the server to unsubscribe the connection from a room.
	TypeLeaveRoom = "leave_room"
	// TypeRoomJoined confirms a join.
	TypeRoomJoined = "room_joined"
	// TypeRoomLeft confirms a leave.
	TypeRoomLeft = "room_left"
	// TypeError carries a protocol-level error.
	TypeError = "error"
)

// ConnectedData is the payload of the handshake message.
type ConnectedData struct {
	ConnectionID string `json:"connection_id"`
	EmployeeID   string `json:"employee_id,omitempty"`
}

// RoomData identifies the room a confirmation refers to.
type RoomData struct {
	Room string `json:"room"`
}

// PongData answers a ping with the server time.
type PongData struct {
	TS int64 `json:"ts"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// ErrEmptyRoom is returned by DecodeRoom when no room id is present.
var ErrEmptyRoom = errors.New("room is required")

// DecodeRoom extracts a room id sent either as a JSON string or a JSON number.
func DecodeRoom(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", ErrEmptyRoom
	}

	var room string
	if data[0] == '"' {
		if err := codec.Unmarshal(data, &room); err != nil {
			return "", err
		}
	} else {
		var num json.Number
		if err := codec.Unmarshal(data, &num); err != nil {
			return "", err
		}
		room = num.String()
	}

	room = strings.TrimSpace(room)
	if room == "" {
		return "", ErrEmptyRoom
	}
	return room, nil
}
