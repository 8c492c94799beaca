package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/rotawire/internal/store"
)

func newMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListEvents(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	first, err := s.SaveEvent(ctx, "schedule:42", "schedule.update", []byte(`{"v":1}`), "emp-1")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = s.SaveEvent(ctx, "dept:1", "notification", nil, "emp-2")
	require.NoError(t, err)

	second, err := s.SaveEvent(ctx, "schedule:42", "schedule.update", []byte(`{"v":2}`), "emp-1")
	require.NoError(t, err)

	events, err := s.ListEvents(ctx, "schedule:42", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)
	assert.JSONEq(t, `{"v":2}`, string(events[1].Data))
	assert.Equal(t, "emp-1", events[1].PublishedBy)

	tests := []struct {
		name    string
		room    string
		afterID int64
		limit   int
		want    []int64
	}{
		{name: "after first", room: "schedule:42", afterID: first.ID, limit: 10, want: []int64{second.ID}},
		{name: "limit", room: "schedule:42", afterID: 0, limit: 1, want: []int64{first.ID}},
		{name: "caught up", room: "schedule:42", afterID: second.ID, limit: 10, want: []int64{}},
		{name: "unknown room", room: "ghost", afterID: 0, limit: 10, want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListEvents(ctx, tt.room, tt.afterID, tt.limit)
			require.NoError(t, err)
			ids := make([]int64, 0, len(got))
			for _, ev := range got {
				ids = append(ids, ev.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestGetEvent(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	saved, err := s.SaveEvent(ctx, "dept:1", "notification", []byte(`"hi"`), "")
	require.NoError(t, err)

	got, err := s.GetEvent(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "dept:1", got.Room)
	assert.Equal(t, `"hi"`, string(got.Data))

	_, err = s.GetEvent(ctx, saved.ID+100)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestNewCreatesSchemaOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := New(path)
	require.NoError(t, err)
	_, err = s.SaveEvent(context.Background(), "r", "t", nil, "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// reopening must keep existing rows
	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	events, err := s.ListEvents(context.Background(), "r", 0, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestNewWithSetupFailure(t *testing.T) {
	_, err := NewWithSetup(":memory:", func(*sql.DB) error { return errors.New("boom") })
	require.Error(t, err)
}
