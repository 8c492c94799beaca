package realtime

import (
	"encoding/json"
	"time"

	"github.com/gammazero/deque"
)

// Outbound is a message waiting for the channel to become ready.
type Outbound struct {
	Type       string
	Data       json.RawMessage
	EnqueuedAt time.Time
}

// outbox is a bounded FIFO. When full, the oldest entry is evicted to admit a new one.
type outbox struct {
	items deque.Deque[Outbound]
	limit int
}

func newOutbox(limit int) *outbox {
	return &outbox{limit: limit}
}

// push appends m and reports how many entries were evicted to make room.
func (q *outbox) push(m Outbound) int {
	dropped := 0
	for q.limit > 0 && q.items.Len() >= q.limit {
		q.items.PopFront()
		dropped++
	}
	q.items.PushBack(m)
	return dropped
}

// drain removes and returns every entry in FIFO order.
func (q *outbox) drain() []Outbound {
	out := make([]Outbound, 0, q.items.Len())
	for q.items.Len() > 0 {
		out = append(out, q.items.PopFront())
	}
	return out
}

func (q *outbox) snapshot() []Outbound {
	out := make([]Outbound, q.items.Len())
	for i := range out {
		out[i] = q.items.At(i)
	}
	return out
}

func (q *outbox) len() int {
	return q.items.Len()
}
