package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultWriteTimeout    = 5 * time.Second
	defaultSendBuffer      = 256
	defaultMaxMessageBytes = 1 << 20
)

// WebSocketOptions tunes the websocket transport.
type WebSocketOptions struct {
	HTTPClient      *http.Client
	Header          http.Header
	WriteTimeout    time.Duration
	SendBuffer      int
	MaxMessageBytes int64
	Logger          *zerolog.Logger
}

// WebSocketTransport returns a TransportFactory that dials with coder/websocket.
func WebSocketTransport(opts WebSocketOptions) TransportFactory {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	return func(url string, h TransportHandler) (Transport, error) {
		ctx, cancel := context.WithCancel(context.Background())
		t := &wsTransport{
			url:     url,
			opts:    opts,
			handler: h,
			ctx:     ctx,
			cancel:  cancel,
			out:     make(chan []byte, opts.SendBuffer),
		}
		go t.run()
		return t, nil
	}
}

type wsTransport struct {
	url     string
	opts    WebSocketOptions
	handler TransportHandler

	ctx    context.Context
	cancel context.CancelFunc
	out    chan []byte

	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) run() {
	conn, _, err := websocket.Dial(t.ctx, t.url, &websocket.DialOptions{
		HTTPClient: t.opts.HTTPClient,
		HTTPHeader: t.opts.Header,
	})
	if err != nil {
		if t.ctx.Err() == nil {
			t.handler.OnError(err)
		}
		return
	}
	conn.SetReadLimit(t.opts.MaxMessageBytes)

	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		conn.CloseNow()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.handler.OnOpen()
	go t.writeLoop(conn)

	for {
		_, data, err := conn.Read(t.ctx)
		if err != nil {
			t.cancel()
			t.handler.OnClose(closeCause(err))
			return
		}
		t.handler.OnMessage(data)
	}
}

func (t *wsTransport) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case frame := <-t.out:
			ctx, cancel := context.WithTimeout(t.ctx, t.opts.WriteTimeout)
			err := conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				t.opts.Logger.Error().Err(err).Msg("write ws frame")
				conn.CloseNow()
				return
			}
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *wsTransport) Send(frame []byte) error {
	if t.ctx.Err() != nil {
		return ErrTransportClosed
	}
	select {
	case t.out <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		t.cancel()
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "client disconnect")
	t.cancel()
	return err
}

func (t *wsTransport) Abort() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	t.cancel()
	if conn != nil {
		conn.CloseNow()
	}
}

// closeCause maps a normal close to nil so state hooks only see real failures.
func closeCause(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
