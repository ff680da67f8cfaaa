package stream

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// fakeSink records everything handed to it. With delay == 0 readiness is
// driven by the test through finish; otherwise each accepted chunk completes
// on its own after delay(i).
type fakeSink struct {
	mu        sync.Mutex
	opened    bool
	inFlight  bool
	accepted  []Chunk
	accepts   int
	eos       int
	eosErrs   int
	released  int
	reject    func(i int, c Chunk) error
	delay     func(i int) time.Duration
	notify    chan error
	playedOut chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{opened: true, notify: make(chan error, 1), playedOut: make(chan struct{})}
}

func (s *fakeSink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened && !s.inFlight && s.released == 0
}

func (s *fakeSink) Accept(c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.accepts
	s.accepts++
	if s.released > 0 {
		return ErrSessionClosed
	}
	if s.inFlight {
		panic("fakeSink: accept while an append is in flight")
	}
	if s.reject != nil {
		if err := s.reject(i, c); err != nil {
			return err
		}
	}
	s.accepted = append(s.accepted, c)
	s.inFlight = true
	if s.delay != nil {
		d := s.delay(i)
		go func() {
			time.Sleep(d)
			s.finish(nil)
		}()
	}
	return nil
}

// finish completes the in-flight append and queues a readiness signal.
func (s *fakeSink) finish(err error) {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
	s.notify <- err
}

// complete clears the in-flight flag without a signal, for driving the
// pipeline by hand.
func (s *fakeSink) complete() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

func (s *fakeSink) Notify() <-chan error { return s.notify }

func (s *fakeSink) EndOfStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eos++
	if s.inFlight {
		s.eosErrs++
		return ErrInvalidFinalizeState
	}
	close(s.playedOut)
	return nil
}

func (s *fakeSink) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
	return nil
}

func (s *fakeSink) Done() <-chan struct{} { return s.playedOut }

func (s *fakeSink) Locator() string { return "fake://sink" }

func (s *fakeSink) snapshot() (accepted []Chunk, accepts, eos, released int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Chunk(nil), s.accepted...), s.accepts, s.eos, s.released
}

func (s *fakeSink) joined() []byte {
	accepted, _, _, _ := s.snapshot()
	return bytes.Join(toBytes(accepted), nil)
}

func toBytes(chunks []Chunk) [][]byte {
	out := make([][]byte, len(chunks))
	for i, c := range chunks {
		out[i] = c
	}
	return out
}

// chunksOf returns chunks of the given sizes, each filled with its index.
func chunksOf(sizes ...int) []Chunk {
	out := make([]Chunk, len(sizes))
	for i, n := range sizes {
		out[i] = Chunk(bytes.Repeat([]byte{byte(i + 1)}, n))
	}
	return out
}

// scriptedBackend feeds chunks into a ChanSource and finishes with err.
type scriptedBackend struct {
	chunks []Chunk
	err    error
	gap    time.Duration
	hold   chan struct{} // when non-nil, the producer waits on it before finishing

	mu      sync.Mutex
	calls   int
	sent    int
	sources []*ChanSource
}

func (b *scriptedBackend) Synthesize(_ context.Context, _ SynthesisRequest) (Source, error) {
	b.mu.Lock()
	b.calls++
	src := NewChanSource(0, nil)
	b.sources = append(b.sources, src)
	b.mu.Unlock()

	go func() {
		ctx := context.Background()
		for _, c := range b.chunks {
			if b.gap > 0 {
				time.Sleep(b.gap)
			}
			if !src.Send(ctx, c) {
				return
			}
			b.mu.Lock()
			b.sent++
			b.mu.Unlock()
		}
		if b.hold != nil {
			select {
			case <-b.hold:
			case <-src.Stopped():
				return
			}
		}
		src.Finish(b.err)
	}()
	return src, nil
}

func (b *scriptedBackend) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}

func testRequest() SynthesisRequest {
	return SynthesisRequest{
		VoiceID:       "YHTchmypGq9MvgpLhywi",
		ModelID:       "eleven_flash_v2_5",
		Text:          "Hello there.",
		VoiceSettings: DefaultVoiceSettings(),
	}
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
