package core

import "context"

// Broker fans published events out to every hub sharing it, including the
// publishing one. Without a broker the hub delivers locally.
type Broker interface {
	Publish(ctx context.Context, ev *Event) error
	// Subscribe blocks, calling fn for every event, until ctx is done.
	Subscribe(ctx context.Context, fn func(*Event)) error
	Close() error
}
