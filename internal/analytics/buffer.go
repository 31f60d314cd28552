package analytics

// Buffer is an ordered queue of change events waiting for a flush. It is not
// safe for concurrent use; the owner serializes access.
type Buffer struct {
	events []ChangeEvent
}

// Push appends an event in arrival order.
func (b *Buffer) Push(ev ChangeEvent) {
	b.events = append(b.events, ev)
}

// Len returns the number of pending events.
func (b *Buffer) Len() int {
	return len(b.events)
}

// Drain returns pending events in arrival order and empties the buffer.
func (b *Buffer) Drain() []ChangeEvent {
	events := b.events
	b.events = nil
	return events
}

// Clear discards pending events.
func (b *Buffer) Clear() {
	b.events = nil
}

// KeepNewest drops all but the n most recent events.
func (b *Buffer) KeepNewest(n int) {
	if n <= 0 {
		b.events = nil
		return
	}
	if len(b.events) <= n {
		return
	}
	kept := make([]ChangeEvent, n)
	copy(kept, b.events[len(b.events)-n:])
	b.events = kept
}
