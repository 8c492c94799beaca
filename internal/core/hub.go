package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Stats is a point-in-time view of the hub.
type Stats struct {
	Clients int `json:"clients"`
	Rooms   int `json:"rooms"`
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Hub owns every connected client and room. All state is confined to the Run
// goroutine; other goroutines talk to it through channels.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	deliveries chan *Event
	stats      chan chan Stats
	done       chan struct{}

	broker Broker
	log    *zerolog.Logger

	clients map[*Client]chan struct{}
	rooms   map[string]*Room
}

// NewHub creates a hub. broker and logger may be nil.
func NewHub(broker Broker, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 64),
		deliveries: make(chan *Event, 64),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
		broker:     broker,
		log:        logger,
		clients:    make(map[*Client]chan struct{}),
		rooms:      make(map[string]*Room),
	}
}

// Run processes hub traffic until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.broker != nil {
		go func() {
			if err := h.broker.Subscribe(ctx, h.Deliver); err != nil && ctx.Err() == nil {
				h.log.Error().Err(err).Msg("broker subscription ended")
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return
		case c := <-h.register:
			stop := make(chan struct{})
			h.clients[c] = stop
			go h.forward(c, stop)
			h.log.Debug().Str("client_id", c.ID).Str("employee_id", c.EmployeeID).Msg("client registered")
		case c := <-h.unregister:
			h.remove(c)
		case cc := <-h.commands:
			h.handle(cc.client, cc.cmd)
		case ev := <-h.deliveries:
			h.broadcast(ev)
		case reply := <-h.stats:
			reply <- Stats{Clients: len(h.clients), Rooms: len(h.rooms)}
		}
	}
}

// RegisterClient adds c to the hub and starts consuming its Commands.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient removes c from every room and closes its Events channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Deliver broadcasts ev to the members of ev.Room on this hub.
func (h *Hub) Deliver(ev *Event) {
	select {
	case h.deliveries <- ev:
	case <-h.done:
	}
}

// Publish sends ev through the broker when one is configured, otherwise
// delivers it locally.
func (h *Hub) Publish(ctx context.Context, ev *Event) error {
	ev.Kind = EventBroadcast
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if h.broker != nil {
		return h.broker.Publish(ctx, ev)
	}

	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.deliveries <- ev:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports the number of clients and rooms.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	return <-reply, nil
}

// forward moves commands from a client into the hub loop until the client is removed.
func (h *Hub) forward(c *Client, stop <-chan struct{}) {
	for {
		select {
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-stop:
				return
			case <-h.done:
				return
			}
		case <-stop:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) handle(c *Client, cmd *Command) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch cmd.Kind {
	case CommandJoinRoom:
		if cmd.Room == "" {
			h.reply(c, &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "room is required")})
			return
		}
		if _, joined := c.rooms[cmd.Room]; joined {
			h.reply(c, &Event{Kind: EventError, Room: cmd.Room, Error: coreError(ErrCodeAlreadyJoined, ErrAlreadyJoined.Error())})
			return
		}
		room, ok := h.rooms[cmd.Room]
		if !ok {
			room = NewRoom(cmd.Room)
			h.rooms[cmd.Room] = room
		}
		room.AddClient(c)
		c.rooms[cmd.Room] = struct{}{}
		h.reply(c, &Event{Kind: EventRoomJoined, Room: cmd.Room})

	case CommandLeaveRoom:
		if _, joined := c.rooms[cmd.Room]; !joined {
			h.reply(c, &Event{Kind: EventError, Room: cmd.Room, Error: coreError(ErrCodeNotInRoom, ErrNotInRoom.Error())})
			return
		}
		h.leave(c, cmd.Room)
		h.reply(c, &Event{Kind: EventRoomLeft, Room: cmd.Room})

	case CommandPing:
		h.reply(c, &Event{Kind: EventPong, CreatedAt: time.Now().UTC()})

	default:
		h.reply(c, &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, ErrBadRequest.Error())})
	}
}

func (h *Hub) leave(c *Client, name string) {
	delete(c.rooms, name)
	room, ok := h.rooms[name]
	if !ok {
		return
	}
	room.RemoveClient(c)
	if room.Empty() {
		delete(h.rooms, name)
	}
}

func (h *Hub) remove(c *Client) {
	stop, ok := h.clients[c]
	if !ok {
		return
	}
	close(stop)
	delete(h.clients, c)
	for name := range c.rooms {
		h.leave(c, name)
	}
	close(c.Events)
	h.log.Debug().Str("client_id", c.ID).Msg("client unregistered")
}

func (h *Hub) broadcast(ev *Event) {
	room, ok := h.rooms[ev.Room]
	if !ok {
		return
	}
	if dropped := room.Broadcast(ev); dropped > 0 {
		h.log.Warn().Str("room", ev.Room).Int("dropped", dropped).Msg("slow clients missed event")
	}
}

func (h *Hub) reply(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		h.log.Warn().Str("client_id", c.ID).Msg("client buffer full, reply dropped")
	}
}
