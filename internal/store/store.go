package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Event is one application event published to a room.
type Event struct {
	ID          int64
	Room        string
	Type        string
	Data        []byte // raw JSON payload, may be nil
	PublishedBy string
	CreatedAt   time.Time
}

// EventStore persists published events so that consumers which were offline
// can catch up over HTTP.
type EventStore interface {
	// SaveEvent appends an event to the room's log and returns it with ID set.
	SaveEvent(ctx context.Context, room, eventType string, data []byte, publishedBy string) (*Event, error)

	// ListEvents returns up to limit events of a room with ID greater than afterID,
	// oldest first.
	ListEvents(ctx context.Context, room string, afterID int64, limit int) ([]*Event, error)

	// GetEvent retrieves a single event by ID.
	GetEvent(ctx context.Context, id int64) (*Event, error)

	// Close releases underlying resources.
	Close() error
}
