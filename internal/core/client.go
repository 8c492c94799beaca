package core

const defaultClientBuffer = 32

// Client is one push connection as seen by the hub.
type Client struct {
	ID         string
	EmployeeID string
	Commands   chan *Command
	Events     chan *Event

	// rooms is owned by the hub goroutine.
	rooms map[string]struct{}
}

// NewClient constructs a client with initialized channels. A non-positive
// buffer selects the default size.
func NewClient(id, employeeID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Client{
		ID:         id,
		EmployeeID: employeeID,
		Commands:   make(chan *Command, 8),
		Events:     make(chan *Event, buffer),
		rooms:      make(map[string]struct{}),
	}
}
