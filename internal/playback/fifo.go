package playback

// fifo is a FIFO of decoded chunks. Not safe for concurrent use; Queue guards it.
type fifo[T any] struct {
	items []T
}

// Enqueue adds an element to the end of the queue.
func (q *fifo[T]) Enqueue(item T) {
	q.items = append(q.items, item)
}

// Dequeue removes and returns the front element of the queue.
// The boolean is false if the queue was empty.
func (q *fifo[T]) Dequeue() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Len returns the number of elements in the queue.
func (q *fifo[T]) Len() int {
	return len(q.items)
}

// Clear drops every element.
func (q *fifo[T]) Clear() {
	q.items = nil
}
