package events

// Event represents a structured state change emitted by a native module.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (RPC stream, metrics,
// audit sinks).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// Engines fall back to it when no emitter has been wired.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

type multiEmitter struct {
	sinks []Emitter
}

// Multi fans every event out to each non-nil sink in order.
func Multi(sinks ...Emitter) Emitter {
	filtered := make([]Emitter, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	return multiEmitter{sinks: filtered}
}

// Emit implements the Emitter interface.
func (m multiEmitter) Emit(evt Event) {
	for _, sink := range m.sinks {
		sink.Emit(evt)
	}
}
