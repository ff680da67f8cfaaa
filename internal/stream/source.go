package stream

import (
	"context"
	"sync"
)

// ChanSource is a Source fed by a producer goroutine. Producers call Send for
// each chunk and finish with Finish exactly once; consumers read Chunks.
type ChanSource struct {
	ch     chan Chunk
	stop   chan struct{}
	err    error
	mu     sync.Mutex
	once   sync.Once
	closer sync.Once
	cancel context.CancelFunc
}

// NewChanSource returns a source with the given channel buffer. cancel, if
// non-nil, is called when the consumer closes the source.
func NewChanSource(buffer int, cancel context.CancelFunc) *ChanSource {
	return &ChanSource{
		ch:     make(chan Chunk, buffer),
		stop:   make(chan struct{}),
		cancel: cancel,
	}
}

// Chunks implements Source.
func (s *ChanSource) Chunks() <-chan Chunk { return s.ch }

// Err implements Source.
func (s *ChanSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements Source. Pending and future sends are abandoned.
func (s *ChanSource) Close() error {
	s.closer.Do(func() {
		close(s.stop)
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}

// Send delivers c, blocking while the consumer is not receiving. It returns
// false once the consumer has closed the source or ctx is done.
func (s *ChanSource) Send(ctx context.Context, c Chunk) bool {
	select {
	case s.ch <- c:
		return true
	case <-s.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// Finish records the terminal result and closes the channel. Later calls are
// ignored.
func (s *ChanSource) Finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}

// Stopped is closed when the consumer closes the source.
func (s *ChanSource) Stopped() <-chan struct{} { return s.stop }
