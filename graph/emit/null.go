package emit

// NullEmitter discards all events.
//
// Use it when event emission is not wanted, e.g. in benchmarks or in
// tests that do not inspect events.
type NullEmitter struct{}

// NewNullEmitter returns an emitter that drops every event.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(Event) {}
