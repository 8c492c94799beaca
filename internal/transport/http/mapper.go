package http

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/vovakirdan/rotawire/internal/core"
	"github.com/vovakirdan/rotawire/internal/proto"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

func inboundToCommand(env proto.Envelope) (*core.Command, *proto.Error) {
	switch env.Type {
	case proto.TypePing:
		return &core.Command{Kind: core.CommandPing}, nil
	case proto.TypeJoinRoom, proto.TypeLeaveRoom:
		room, err := proto.DecodeRoom(env.Data)
		if err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: fmt.Sprintf("%s: %v", env.Type, err)}
		}
		kind := core.CommandJoinRoom
		if env.Type == proto.TypeLeaveRoom {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, Room: room}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeUnknownType, Msg: "unknown message type: " + env.Type}
	}
}

func outboundFromEvent(event *core.Event) (proto.Envelope, error) {
	switch event.Kind {
	case core.EventBroadcast:
		return proto.Envelope{Type: event.Type, Data: event.Data}, nil
	case core.EventRoomJoined:
		return envelope(proto.TypeRoomJoined, proto.RoomData{Room: event.Room})
	case core.EventRoomLeft:
		return envelope(proto.TypeRoomLeft, proto.RoomData{Room: event.Room})
	case core.EventPong:
		return envelope(proto.TypePong, proto.PongData{TS: event.CreatedAt.Unix()})
	case core.EventError:
		if event.Error == nil {
			return envelope(proto.TypeError, proto.Error{Code: "unknown", Msg: "unknown error"})
		}
		return envelope(proto.TypeError, proto.Error{Code: event.Error.Code, Msg: event.Error.Message})
	default:
		return proto.Envelope{}, fmt.Errorf("unsupported event kind %d", event.Kind)
	}
}

func envelope(msgType string, payload any) (proto.Envelope, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return proto.Envelope{}, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return proto.Envelope{Type: msgType, Data: data}, nil
}
