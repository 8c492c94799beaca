package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/rotawire/internal/store"
)

// Schema is applied on every open; statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	room         TEXT NOT NULL,
	type         TEXT NOT NULL,
	data         BLOB,
	published_by TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_room_id ON events (room, id);
`

// SQLiteStore implements store.EventStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.EventStore = (*SQLiteStore)(nil)

// New opens the database at dbPath and ensures the schema exists.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup opens the database and runs setup before the first query.
// Tests use it with ":memory:" and ApplySchema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates the events table if missing.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveEvent appends an event to the log.
func (s *SQLiteStore) SaveEvent(ctx context.Context, room, eventType string, data []byte, publishedBy string) (*store.Event, error) {
	createdAt := time.Now().UTC()
	query := `
		INSERT INTO events (room, type, data, published_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, room, eventType, data, publishedBy, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return &store.Event{
		ID:          id,
		Room:        room,
		Type:        eventType,
		Data:        data,
		PublishedBy: publishedBy,
		CreatedAt:   createdAt,
	}, nil
}

// ListEvents returns events of room newer than afterID in chronological order.
func (s *SQLiteStore) ListEvents(ctx context.Context, room string, afterID int64, limit int) ([]*store.Event, error) {
	query := `
		SELECT id, room, type, data, published_by, created_at
		FROM events
		WHERE room = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, room, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]*store.Event, 0)
	for rows.Next() {
		var ev store.Event
		if err := rows.Scan(&ev.ID, &ev.Room, &ev.Type, &ev.Data, &ev.PublishedBy, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, &ev)
	}

	return events, rows.Err()
}

// GetEvent retrieves an event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, id int64) (*store.Event, error) {
	query := `
		SELECT id, room, type, data, published_by, created_at
		FROM events
		WHERE id = ?
	`
	var ev store.Event
	err := s.db.QueryRowContext(ctx, query, id).Scan(&ev.ID, &ev.Room, &ev.Type, &ev.Data, &ev.PublishedBy, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	return &ev, nil
}
