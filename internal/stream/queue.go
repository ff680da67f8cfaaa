package stream

const minQueueCapacity = 16

// BufferQueue is a FIFO of chunks waiting for the sink. It is a growable ring
// buffer and is not safe for concurrent use: only a session's event loop
// touches it.
type BufferQueue struct {
	items []Chunk
	head  int // read position
	size  int
	bytes int
	peak  int
}

// NewBufferQueue returns an empty queue with room for capacity chunks before
// it has to grow.
func NewBufferQueue(capacity int) *BufferQueue {
	if capacity < minQueueCapacity {
		capacity = minQueueCapacity
	}
	return &BufferQueue{items: make([]Chunk, capacity)}
}

// Push appends c at the tail.
func (q *BufferQueue) Push(c Chunk) {
	if q.items == nil {
		q.items = make([]Chunk, minQueueCapacity)
	}
	if q.size == len(q.items) {
		q.grow()
	}
	q.items[(q.head+q.size)%len(q.items)] = c
	q.size++
	q.bytes += len(c)
	if q.size > q.peak {
		q.peak = q.size
	}
}

// PopFront removes and returns the oldest chunk.
func (q *BufferQueue) PopFront() (Chunk, bool) {
	if q.size == 0 {
		return nil, false
	}
	c := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.size--
	q.bytes -= len(c)
	return c, true
}

// IsEmpty reports whether the queue holds no chunks.
func (q *BufferQueue) IsEmpty() bool { return q.size == 0 }

// Len returns the number of queued chunks.
func (q *BufferQueue) Len() int { return q.size }

// Bytes returns the total size of queued chunks.
func (q *BufferQueue) Bytes() int { return q.bytes }

// Peak returns the largest length the queue has reached.
func (q *BufferQueue) Peak() int { return q.peak }

// Clear drops every queued chunk. Used only when a session is aborted.
func (q *BufferQueue) Clear() {
	for i := range q.items {
		q.items[i] = nil
	}
	q.head, q.size, q.bytes = 0, 0, 0
}

// grow doubles the ring, unrolling it so head is back at index zero.
func (q *BufferQueue) grow() {
	items := make([]Chunk, len(q.items)*2)
	n := copy(items, q.items[q.head:])
	copy(items[n:], q.items[:q.head])
	q.items = items
	q.head = 0
}
