package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/rotawire/internal/core"
	"github.com/vovakirdan/rotawire/internal/proto"
	"github.com/vovakirdan/rotawire/internal/store"
)

// reservedTypes cannot be published by applications.
var reservedTypes = map[string]struct{}{
	proto.TypePing:       {},
	proto.TypePong:       {},
	proto.TypeConnected:  {},
	proto.TypeJoinRoom:   {},
	proto.TypeLeaveRoom:  {},
	proto.TypeRoomJoined: {},
	proto.TypeRoomLeft:   {},
	proto.TypeError:      {},
}

// EventHandlers serves the publish and history endpoints.
type EventHandlers struct {
	hub          *core.Hub
	store        store.EventStore
	historyLimit int
	log          *zerolog.Logger
}

// NewEventHandlers creates the event API handlers. events may be nil, in
// which case events are broadcast but not persisted.
func NewEventHandlers(hub *core.Hub, events store.EventStore, historyLimit int, logger *zerolog.Logger) *EventHandlers {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &EventHandlers{
		hub:          hub,
		store:        events,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// PublishEventRequest is the body of POST /api/rooms/:room/events.
type PublishEventRequest struct {
	Type string          `json:"type" binding:"required"`
	Data json.RawMessage `json:"data"`
}

// EventResponse represents an event in API responses.
type EventResponse struct {
	ID          int64           `json:"id,omitempty"`
	Room        string          `json:"room"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data,omitempty"`
	PublishedBy string          `json:"published_by,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

// PublishEvent persists an event and fans it out to the room.
// POST /api/rooms/:room/events
func (h *EventHandlers) PublishEvent(c *gin.Context) {
	room := strings.TrimSpace(c.Param("room"))
	if room == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room is required"})
		return
	}

	var req PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid publish request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if _, reserved := reservedTypes[req.Type]; reserved {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "event type is reserved"})
		return
	}
	if len(req.Data) > 0 && !json.Valid(req.Data) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "data must be valid JSON"})
		return
	}

	publishedBy := c.GetString(ContextKeyEmployeeID)
	ctx := c.Request.Context()

	event := &core.Event{
		Room:      room,
		Type:      req.Type,
		Data:      req.Data,
		CreatedAt: time.Now().UTC(),
	}
	if h.store != nil {
		saved, err := h.store.SaveEvent(ctx, room, req.Type, req.Data, publishedBy)
		if err != nil {
			h.log.Error().Err(err).Str("room", room).Msg("failed to save event")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		event.ID = saved.ID
		event.CreatedAt = saved.CreatedAt
	}

	if err := h.hub.Publish(ctx, event); err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to publish event")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "publish failed"})
		return
	}

	h.log.Debug().Str("room", room).Str("type", req.Type).Int64("id", event.ID).Msg("event published")
	c.JSON(http.StatusCreated, EventResponse{
		ID:          event.ID,
		Room:        room,
		Type:        req.Type,
		Data:        req.Data,
		PublishedBy: publishedBy,
		CreatedAt:   event.CreatedAt.Format(time.RFC3339Nano),
	})
}

// ListEvents returns events of a room newer than ?after=, oldest first.
// GET /api/rooms/:room/events
func (h *EventHandlers) ListEvents(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event history is disabled"})
		return
	}

	room := c.Param("room")
	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid after"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.historyLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return
	}
	limit = min(limit, h.historyLimit)

	events, err := h.store.ListEvents(c.Request.Context(), room, after, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to list events")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		response = append(response, toEventResponse(ev))
	}

	c.JSON(http.StatusOK, response)
}

// GetEvent returns a single stored event.
// GET /api/events/:id
func (h *EventHandlers) GetEvent(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event history is disabled"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid event id"})
		return
	}

	ev, err := h.store.GetEvent(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("id", id).Msg("failed to get event")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toEventResponse(ev))
}

func toEventResponse(ev *store.Event) EventResponse {
	return EventResponse{
		ID:          ev.ID,
		Room:        ev.Room,
		Type:        ev.Type,
		Data:        ev.Data,
		PublishedBy: ev.PublishedBy,
		CreatedAt:   ev.CreatedAt.Format(time.RFC3339Nano),
	}
}
