package events

// Event is the broadcastable payload handed to downstream subscribers
// (RPC, indexers, log sinks).
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Payload is a structured state change that knows how to render itself as a
// broadcastable Event.
type Payload interface {
	EventType() string
	Event() *Event
}

// Emitter broadcasts payloads to downstream subscribers.
type Emitter interface {
	Emit(Payload)
}

// NoopEmitter satisfies the Emitter interface while discarding all payloads.
// It is the default for components that only optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Payload) {}

// Capture collects every emitted event in order. Intended for tests and for
// in-process subscribers that drain events on their own schedule.
type Capture struct {
	Events []*Event
}

// Emit implements the Emitter interface.
func (c *Capture) Emit(p Payload) {
	if p == nil {
		return
	}
	if evt := p.Event(); evt != nil {
		c.Events = append(c.Events, evt)
	}
}
