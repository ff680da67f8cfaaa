package audio

import (
	"io"
	"sync"
)

// chunkReader feeds one chunk at a time to a player. Read never blocks: with
// no chunk pending it returns (0, nil) and the player retries, since oto reads
// while holding the lock its device callback needs. consumed is called once
// a chunk has been fully read. A trailing odd byte is carried into the next
// chunk so reads always end on a sample boundary.
type chunkReader struct {
	mu       sync.Mutex
	cur      []byte
	carry    []byte
	ended    bool
	closed   bool
	total    int64
	consumed func()
}

func newChunkReader(consumed func()) *chunkReader {
	return &chunkReader{consumed: consumed}
}

// push makes c the current chunk. The previous chunk must have been consumed.
func (r *chunkReader) push(c []byte) {
	r.mu.Lock()
	if len(r.carry) > 0 {
		buf := make([]byte, 0, len(r.carry)+len(c))
		buf = append(buf, r.carry...)
		c = append(buf, c...)
		r.carry = r.carry[:0]
	}
	r.cur = c
	held := r.holdOddByte()
	r.mu.Unlock()

	// A one-byte chunk is held whole; it is consumed as far as the caller
	// can tell.
	if held && r.consumed != nil {
		r.consumed()
	}
}

// holdOddByte moves the last byte of an odd-length chunk into carry. It
// reports whether nothing is left to read.
func (r *chunkReader) holdOddByte() bool {
	if len(r.cur)%BytesPerSample == 0 {
		return false
	}
	r.carry = append(r.carry, r.cur[len(r.cur)-1])
	r.cur = r.cur[:len(r.cur)-1]
	return len(r.cur) == 0
}

// end makes Read return io.EOF once the current chunk is drained. It returns
// the number of carried bytes that will never be played.
func (r *chunkReader) end() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = true
	dropped := len(r.carry)
	r.carry = nil
	return dropped
}

// close makes Read return io.EOF immediately.
func (r *chunkReader) close() {
	r.mu.Lock()
	r.closed = true
	r.cur = nil
	r.mu.Unlock()
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	if r.closed || (r.ended && len(r.cur) == 0) {
		r.mu.Unlock()
		return 0, io.EOF
	}
	if len(r.cur) == 0 {
		r.mu.Unlock()
		return 0, nil
	}

	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	r.total += int64(n)
	drained := len(r.cur) == 0
	r.mu.Unlock()

	if drained && r.consumed != nil {
		r.consumed()
	}
	return n, nil
}

// bytesRead returns how much audio the player has pulled.
func (r *chunkReader) bytesRead() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
