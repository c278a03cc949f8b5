package telemetry

// CircularBuffer keeps the last capacity items added. Not safe for
// concurrent use; Recorder guards it.
type CircularBuffer[T any] struct {
	items []T
	head  int
	full  bool
}

// NewCircularBuffer creates a buffer holding at most capacity items.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &CircularBuffer[T]{items: make([]T, capacity)}
}

// Add appends item, overwriting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if b.head == 0 {
		b.full = true
	}
}

// Items returns the items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	if !b.full {
		out := make([]T, b.head)
		copy(out, b.items[:b.head])
		return out
	}
	out := make([]T, 0, len(b.items))
	out = append(out, b.items[b.head:]...)
	return append(out, b.items[:b.head]...)
}

// Size returns the number of items held.
func (b *CircularBuffer[T]) Size() int {
	if b.full {
		return len(b.items)
	}
	return b.head
}

// Clear empties the buffer.
func (b *CircularBuffer[T]) Clear() {
	clear(b.items)
	b.head = 0
	b.full = false
}
