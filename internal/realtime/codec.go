package realtime

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/vovakirdan/rotawire/internal/proto"
)

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return wire.Marshal(payload)
}

func encodeFrame(msgType string, data []byte) ([]byte, error) {
	return wire.Marshal(proto.Envelope{Type: msgType, Data: data})
}

func decodeFrame(frame []byte) (proto.Envelope, error) {
	var env proto.Envelope
	if err := wire.Unmarshal(frame, &env); err != nil {
		return env, err
	}
	return env, nil
}
