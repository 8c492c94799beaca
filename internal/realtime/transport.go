package realtime

// Transport is a message-framed bidirectional connection owned by a Channel.
type Transport interface {
	// Send queues one text frame for transmission.
	Send(frame []byte) error
	// Close performs a graceful close.
	Close() error
	// Abort drops the connection without waiting for the peer.
	Abort()
}

// TransportHandler receives transport callbacks. OnOpen fires at most once;
// OnClose fires only after OnOpen. A failure before open is reported through OnError.
type TransportHandler interface {
	OnOpen()
	OnMessage(frame []byte)
	OnError(err error)
	OnClose(err error)
}

// TransportFactory starts opening a transport to url. It must return without
// waiting for the connection and must not invoke h synchronously.
type TransportFactory func(url string, h TransportHandler) (Transport, error)

// transportHandler binds callbacks to the transport generation they belong to,
// so late callbacks from an abandoned transport are ignored.
type transportHandler struct {
	ch  *Channel
	gen uint64
}

func (h *transportHandler) OnOpen() {
	h.ch.handleTransport(h.gen, evOpened, nil)
}

func (h *transportHandler) OnMessage(frame []byte) {
	h.ch.handleFrame(h.gen, frame)
}

func (h *transportHandler) OnError(err error) {
	h.ch.handleTransport(h.gen, evFailed, err)
}

func (h *transportHandler) OnClose(err error) {
	h.ch.handleTransport(h.gen, evClosed, err)
}
