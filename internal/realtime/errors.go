package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionTimeout is returned by Connect when the transport does not
	// open within Config.ConnectTimeout.
	ErrConnectionTimeout = errors.New("connection timeout")
	// ErrConnectionCanceled is returned by Connect when Disconnect abandons the attempt.
	ErrConnectionCanceled = errors.New("connection attempt canceled")
	// ErrChannelClosing is returned by Connect while Disconnect is still closing the transport.
	ErrChannelClosing = errors.New("channel is closing")
	// ErrInvalidOrigin is returned when the configured origin cannot produce a ws URL.
	ErrInvalidOrigin = errors.New("invalid origin")

	// ErrTransportClosed is returned by Transport.Send after the transport is gone.
	ErrTransportClosed = errors.New("transport closed")
	// ErrSendBufferFull is returned by Transport.Send when the write buffer is saturated.
	ErrSendBufferFull = errors.New("send buffer full")

	errMissingType = errors.New("message type is missing")
)

// ConnectionError reports a transport failure before the channel opened.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection failed"
	}
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
