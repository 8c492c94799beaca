package realtime

import "encoding/json"

// WildcardEvent receives every inbound message regardless of its type.
const WildcardEvent = "message"

// Handler receives the data field of an inbound message.
type Handler func(data json.RawMessage)

// ListenerID identifies a registered handler for RemoveEventListener.
type ListenerID uint64

type listener struct {
	id ListenerID
	fn Handler
}

// registry maps event types to handlers in registration order.
type registry struct {
	next     ListenerID
	handlers map[string][]listener
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string][]listener)}
}

func (r *registry) add(eventType string, fn Handler) ListenerID {
	r.next++
	r.handlers[eventType] = append(r.handlers[eventType], listener{id: r.next, fn: fn})
	return r.next
}

func (r *registry) remove(eventType string, id ListenerID) bool {
	list := r.handlers[eventType]
	for i, l := range list {
		if l.id != id {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(r.handlers, eventType)
		} else {
			r.handlers[eventType] = list
		}
		return true
	}
	return false
}

// match returns the handlers for eventType followed by the wildcard handlers.
// The returned slice is a copy and safe to use without holding the channel lock.
func (r *registry) match(eventType string) []Handler {
	typed := r.handlers[eventType]
	var wild []listener
	if eventType != WildcardEvent {
		wild = r.handlers[WildcardEvent]
	}

	out := make([]Handler, 0, len(typed)+len(wild))
	for _, l := range typed {
		out = append(out, l.fn)
	}
	for _, l := range wild {
		out = append(out, l.fn)
	}
	return out
}
