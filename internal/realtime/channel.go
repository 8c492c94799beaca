// Package realtime implements the client side of the push channel: a single
// logical connection to the /ws endpoint with a bounded outbound queue, a
// heartbeat, room membership bookkeeping and typed event dispatch.
//
// A Channel never reconnects on its own. When the transport closes the channel
// goes back to StateDisconnected and the application decides whether to call
// Connect again.
package realtime

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/rotawire/internal/proto"
)

const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultQueueCapacity     = 100
)

// Config holds Channel settings. Zero values fall back to the defaults above.
type Config struct {
	// Origin is the URL the application is served from, e.g. https://app.example.com.
	Origin string
	// Path is the push endpoint path on the origin host.
	Path string

	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration // negative disables the heartbeat
	QueueCapacity     int

	Transport TransportFactory
	Clock     clock.Clock
	Logger    *zerolog.Logger
}

// DefaultConfig returns a configuration with the default deadline, heartbeat and queue size.
func DefaultConfig() Config {
	return Config{
		Path:              DefaultPath,
		ConnectTimeout:    DefaultConnectTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		QueueCapacity:     DefaultQueueCapacity,
	}
}

// attempt is the pending result of a connection attempt, shared by every
// Connect call made while it is in flight.
type attempt struct {
	done    chan struct{}
	err     error
	settled bool
}

// Channel is a single reconnect-aware push connection. It is safe for
// concurrent use. Handlers and state hooks run without the channel lock held,
// so they may call back into the channel.
type Channel struct {
	cfg   Config
	clock clock.Clock
	log   *zerolog.Logger
	dial  TransportFactory

	mu        sync.Mutex
	phase     phase
	gen       uint64
	url       string
	transport Transport
	closing   Transport
	attempt   *attempt
	timeout   *clock.Timer
	heartbeat *clock.Timer

	queue        *outbox
	listeners    *registry
	rooms        map[string]struct{}
	lastActivity time.Time

	hooks   []func(StateEvent)
	notices []StateEvent
}

// New creates a disconnected channel.
func New(cfg Config) *Channel {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	if cfg.Transport == nil {
		cfg.Transport = WebSocketTransport(WebSocketOptions{Logger: cfg.Logger})
	}

	logger := cfg.Logger.With().Str("component", "realtime").Logger()

	return &Channel{
		cfg:       cfg,
		clock:     cfg.Clock,
		log:       &logger,
		dial:      cfg.Transport,
		queue:     newOutbox(cfg.QueueCapacity),
		listeners: newRegistry(),
		rooms:     make(map[string]struct{}),
	}
}

// Connect opens the channel using credential as the token query parameter.
//
// It blocks until the transport opens (nil), fails (*ConnectionError), misses
// the connect deadline (ErrConnectionTimeout) or is abandoned by Disconnect
// (ErrConnectionCanceled). Calls made while an attempt is in flight join that
// attempt instead of opening a second transport; the credential of the first
// call wins. Canceling ctx only stops the wait, not the attempt.
func (c *Channel) Connect(ctx context.Context, credential string) error {
	c.mu.Lock()

	switch c.phase.state {
	case StateOpen:
		c.mu.Unlock()
		return nil
	case StateClosing:
		c.mu.Unlock()
		return ErrChannelClosing
	case StateDisconnected:
		u, err := BuildURL(c.cfg.Origin, c.cfg.Path, credential)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.url = u
	}

	c.apply(evConnect, nil)
	att := c.attempt
	events, hooks := c.takeNotices()
	c.mu.Unlock()
	c.notify(events, hooks)

	if att == nil {
		return ErrConnectionCanceled
	}

	select {
	case <-att.done:
		return att.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send transmits {type, data: payload} if the channel is open and the server
// handshake has been received, and queues it otherwise. Failures are logged,
// never returned.
func (c *Channel) Send(msgType string, payload any) {
	data, err := encodePayload(payload)
	if err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("encode outbound payload")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendLocked(msgType, data)
}

// Disconnect stops the heartbeat, closes the transport and forgets room
// membership. Listeners and queued messages are kept. Calling it while
// disconnected is a no-op apart from clearing rooms.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.apply(evDisconnect, nil)
	closing := c.closing
	c.closing = nil
	events, hooks := c.takeNotices()
	c.mu.Unlock()
	c.notify(events, hooks)

	if closing == nil {
		return
	}

	if err := closing.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close transport")
	}

	c.mu.Lock()
	c.apply(evShutdown, nil)
	events, hooks = c.takeNotices()
	c.mu.Unlock()
	c.notify(events, hooks)
}

// JoinRoom records room membership and, when connected, asks the server to
// join. The request is queued until the handshake if the channel is not ready.
func (c *Channel) JoinRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rooms[room] = struct{}{}
	c.sendControlLocked(proto.TypeJoinRoom, room)
}

// LeaveRoom removes room from the membership set and, when connected, asks the
// server to leave. Leaving a room that was never joined is allowed.
func (c *Channel) LeaveRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.rooms, room)
	c.sendControlLocked(proto.TypeLeaveRoom, room)
}

// AddEventListener registers fn for inbound messages of eventType. Use
// WildcardEvent to receive every message.
func (c *Channel) AddEventListener(eventType string, fn Handler) ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listeners.add(eventType, fn)
}

// RemoveEventListener unregisters a handler. Unknown ids are ignored.
func (c *Channel) RemoveEventListener(eventType string, id ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners.remove(eventType, id)
}

// OnStateChange registers fn to be called after every state change.
func (c *Channel) OnStateChange(fn func(StateEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// State returns the current transport state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase.state
}

// IsConnected reports whether the transport is open.
func (c *Channel) IsConnected() bool {
	return c.State() == StateOpen
}

// IsReady reports whether the server handshake has been received on the open transport.
func (c *Channel) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase.state == StateOpen && c.phase.ready
}

// Rooms returns the rooms the channel believes it has joined, sorted.
func (c *Channel) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.rooms))
}

// Pending returns a copy of the outbound queue, oldest first.
func (c *Channel) Pending() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.snapshot()
}

// LastActivity returns the time a message was last sent or received.
func (c *Channel) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// apply runs one state machine step and executes its effects. c.mu must be held.
func (c *Channel) apply(ev event, cause error) {
	next, effects, ok := transition(c.phase, ev)
	if !ok {
		c.log.Debug().Str("state", c.phase.state.String()).Str("event", ev.String()).Msg("event ignored")
		return
	}

	prev := c.phase
	c.phase = next
	if prev.state != next.state {
		c.log.Debug().
			Str("from", prev.state.String()).
			Str("to", next.state.String()).
			Str("event", ev.String()).
			Msg("state change")
		c.notices = append(c.notices, StateEvent{Old: prev.state, New: next.state, Err: cause})
	}

	var openErr error
	for _, fx := range effects {
		switch fx {
		case fxOpenTransport:
			openErr = c.openTransport()
		case fxStopTimeout:
			stopTimer(&c.timeout)
		case fxStartHeartbeat, fxSendPing:
			c.scheduleHeartbeat()
			if fx == fxSendPing {
				c.sendLocked(proto.TypePing, nil)
			}
		case fxStopHeartbeat:
			stopTimer(&c.heartbeat)
		case fxResolveConnect:
			c.settle(nil)
		case fxRejectConnect:
			c.settle(rejection(ev, cause))
		case fxDropTransport:
			c.transport = nil
			c.gen++
		case fxAbandonTransport:
			if c.transport != nil {
				c.transport.Abort()
				c.transport = nil
			}
			c.gen++
		case fxCloseTransport:
			c.closing = c.transport
			c.transport = nil
			c.gen++
		case fxDrainQueue:
			for _, m := range c.queue.drain() {
				c.transmit(m.Type, m.Data)
			}
		case fxClearRooms:
			clear(c.rooms)
		}
	}

	if openErr != nil {
		c.apply(evFailed, openErr)
	}
}

func (c *Channel) openTransport() error {
	c.gen++
	gen := c.gen
	c.attempt = &attempt{done: make(chan struct{})}
	c.timeout = c.clock.AfterFunc(c.cfg.ConnectTimeout, func() {
		c.handleTimer(gen, evTimeout)
	})

	t, err := c.dial(c.url, &transportHandler{ch: c, gen: gen})
	if err != nil {
		return err
	}
	c.transport = t
	return nil
}

func (c *Channel) scheduleHeartbeat() {
	stopTimer(&c.heartbeat)
	if c.cfg.HeartbeatInterval < 0 {
		return
	}
	gen := c.gen
	c.heartbeat = c.clock.AfterFunc(c.cfg.HeartbeatInterval, func() {
		c.handleTimer(gen, evHeartbeat)
	})
}

func (c *Channel) settle(err error) {
	a := c.attempt
	if a == nil || a.settled {
		return
	}
	a.err = err
	a.settled = true
	close(a.done)
}

func rejection(ev event, cause error) error {
	switch ev {
	case evTimeout:
		return ErrConnectionTimeout
	case evDisconnect:
		return ErrConnectionCanceled
	default:
		return &ConnectionError{Err: cause}
	}
}

func (c *Channel) sendControlLocked(msgType, room string) {
	if c.phase.state != StateOpen {
		return
	}
	data, err := encodePayload(room)
	if err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("encode room id")
		return
	}
	c.sendLocked(msgType, data)
}

func (c *Channel) sendLocked(msgType string, data []byte) {
	now := c.clock.Now()
	c.lastActivity = now

	if c.phase.state == StateOpen && c.phase.ready && c.transport != nil {
		c.transmit(msgType, data)
		return
	}

	if dropped := c.queue.push(Outbound{Type: msgType, Data: data, EnqueuedAt: now}); dropped > 0 {
		c.log.Warn().
			Int("dropped", dropped).
			Int("capacity", c.cfg.QueueCapacity).
			Msg("outbound queue full, dropped oldest")
	}
}

func (c *Channel) transmit(msgType string, data []byte) {
	frame, err := encodeFrame(msgType, data)
	if err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("encode outbound frame")
		return
	}
	if c.transport == nil {
		c.log.Error().Err(ErrTransportClosed).Str("type", msgType).Msg("send failed")
		return
	}
	if err := c.transport.Send(frame); err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("send failed")
	}
}

func (c *Channel) handleTimer(gen uint64, ev event) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if ev == evTimeout {
		c.log.Warn().Dur("timeout", c.cfg.ConnectTimeout).Msg("connect timed out")
	}
	c.apply(ev, nil)
	events, hooks := c.takeNotices()
	c.mu.Unlock()
	c.notify(events, hooks)
}

func (c *Channel) handleTransport(gen uint64, ev event, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Debug().Str("event", ev.String()).Msg("callback from stale transport")
		return
	}

	switch {
	case ev == evFailed && c.phase.state == StateConnecting:
		c.log.Error().Err(cause).Msg("connect failed")
	case ev == evFailed:
		c.log.Warn().Err(cause).Msg("transport error")
	case ev == evClosed && c.phase.state == StateOpen:
		c.log.Info().Err(cause).Msg("transport closed")
	}

	c.apply(ev, cause)
	events, hooks := c.takeNotices()
	c.mu.Unlock()
	c.notify(events, hooks)
}

func (c *Channel) handleFrame(gen uint64, frame []byte) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.lastActivity = c.clock.Now()

	env, err := decodeFrame(frame)
	if err == nil && env.Type == "" {
		err = errMissingType
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Error().Err(err).Int("bytes", len(frame)).Msg("malformed inbound message")
		return
	}

	if env.Type == proto.TypeConnected {
		c.apply(evHandshake, nil)
	}
	handlers := c.listeners.match(env.Type)
	events, hooks := c.takeNotices()
	c.mu.Unlock()
	c.notify(events, hooks)

	for _, h := range handlers {
		c.dispatch(env.Type, h, env.Data)
	}
}

func (c *Channel) dispatch(msgType string, h Handler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("type", msgType).Msg("event handler panicked")
		}
	}()
	h(data)
}

// takeNotices hands pending state events and a snapshot of the hooks to the
// caller, who delivers them after releasing c.mu.
func (c *Channel) takeNotices() ([]StateEvent, []func(StateEvent)) {
	if len(c.notices) == 0 {
		return nil, nil
	}
	events := c.notices
	c.notices = nil
	return events, slices.Clone(c.hooks)
}

func (c *Channel) notify(events []StateEvent, hooks []func(StateEvent)) {
	for _, ev := range events {
		for _, fn := range hooks {
			fn(ev)
		}
	}
}

func stopTimer(t **clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
