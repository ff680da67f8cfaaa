package stream

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Session is one playback attempt. It owns exactly one queue and one sink and
// runs a single event loop that serializes source chunks, sink readiness
// signals, the source's terminal event and abort.
type Session struct {
	id      string
	request SynthesisRequest
	media   MediaType
	source  Source
	sink    Sink
	opts    Options
	logger  *log.Logger
	started time.Time

	mu sync.Mutex // guards p and err for readers outside the loop
	p  *pipeline
	err error

	abortCh   chan struct{}
	abortOnce sync.Once
	done      chan struct{}
	release   sync.Once
	ended     time.Time

	span    trace.Span
	metrics *instruments
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Request returns the request the session was started with.
func (s *Session) Request() SynthesisRequest { return s.request.Clone() }

// Media returns the negotiated media type.
func (s *Session) Media() MediaType { return s.media }

// StartedAt returns when the session was started.
func (s *Session) StartedAt() time.Time { return s.started }

// EndedAt returns when the session released its sink, or the zero time.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.state
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.snapshot()
}

// Rejections returns the decode rejections seen so far.
func (s *Session) Rejections() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.p.rejections)
}

// Locator returns the sink's playable handle, if it has one.
func (s *Session) Locator() string {
	if l, ok := s.sink.(Locator); ok {
		return l.Locator()
	}
	return ""
}

// Done is closed once the session has released its resources.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the session's outcome once Done is closed: nil for a completed
// stream, an error wrapping ErrSourceFailure for a failed one, or ErrAborted.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the session is done or ctx is cancelled.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abort stops the session from any state and waits for it to release its
// sink. It is safe to call more than once and from OnError.
func (s *Session) Abort() {
	s.abortOnce.Do(func() { close(s.abortCh) })
	<-s.done
}

func (s *Session) throttled(paused bool) bool {
	if s.opts.HighWater <= 0 {
		return false
	}
	n := s.p.queue.Len()
	if paused {
		return n > s.opts.LowWater
	}
	return n >= s.opts.HighWater
}

// step runs one handler under the snapshot lock.
func (s *Session) step(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *Session) run(ctx context.Context) {
	var outcome error
	defer func() { s.finish(outcome) }()

	chunks := s.source.Chunks()
	notify := s.sink.Notify()
	paused := false

	for {
		s.mu.Lock()
		finalized := s.p.finalized
		wasPaused := paused
		paused = s.throttled(paused)
		queued := s.p.queue.Len()
		s.mu.Unlock()

		if finalized {
			break
		}
		if paused != wasPaused {
			s.logger.Debug("backpressure", "session", s.id, "paused", paused, "queued", queued)
		}

		in := chunks
		if paused {
			in = nil
		}

		select {
		case <-ctx.Done():
			outcome = s.abort()
			return
		case <-s.abortCh:
			outcome = s.abort()
			return
		case c, ok := <-in:
			if !ok {
				chunks = nil
				err := s.source.Err()
				s.step(func() { s.p.sourceTerminated(err) })
				continue
			}
			s.metrics.chunk(ctx, len(c))
			s.step(func() { s.p.chunkReceived(c) })
		case err := <-notify:
			s.step(func() { s.p.sinkReady(err) })
			s.metrics.depth(ctx, s.Stats().Queued)
		}
	}

	s.mu.Lock()
	outcome = s.p.failure
	s.mu.Unlock()

	// Let the audio play out before releasing the device.
	if pl, ok := s.sink.(Player); ok {
		select {
		case <-pl.Done():
		case <-s.abortCh:
			s.logger.Debug("aborted during playout", "session", s.id)
			if outcome == nil {
				outcome = ErrAborted
			}
		case <-ctx.Done():
		}
	}
}

// abort tears the pipeline down and returns the session outcome.
func (s *Session) abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p.finalized {
		return s.p.failure
	}
	s.logger.Debug("aborting", "session", s.id, "state", s.p.state, "queued", s.p.queue.Len())
	s.p.abort()
	return ErrAborted
}

func (s *Session) releaseResources() {
	s.release.Do(func() {
		if err := s.source.Close(); err != nil {
			s.logger.Debug("closing source", "session", s.id, "err", err)
		}
		if err := s.sink.Release(); err != nil {
			s.logger.Warn("releasing sink", "session", s.id, "err", err)
		}
	})
}

func (s *Session) finish(outcome error) {
	s.releaseResources()

	s.mu.Lock()
	if outcome != nil && !errors.Is(outcome, ErrAborted) {
		outcome = &SessionError{ID: s.id, Op: "stream", Err: outcome}
	}
	s.err = outcome
	s.ended = time.Now()
	stats := s.p.snapshot()
	s.mu.Unlock()

	s.span.SetAttributes(
		attribute.String("vista.session.state", stats.State.String()),
		attribute.Int64("vista.session.bytes", stats.BytesReceived),
		attribute.Int("vista.session.chunks", stats.ChunksReceived),
		attribute.Int("vista.session.rejected", stats.Rejected),
		attribute.Int("vista.session.peak_queue", stats.PeakQueued),
	)
	if outcome != nil {
		s.span.RecordError(outcome)
		s.span.SetStatus(codes.Error, outcome.Error())
	}
	s.span.End()

	s.logger.Debug("session finished", "session", s.id, "state", stats.State,
		"chunks", stats.ChunksReceived, "bytes", stats.BytesReceived,
		"elapsed", s.ended.Sub(s.started), "err", outcome)

	close(s.done)

	if outcome != nil && !errors.Is(outcome, ErrAborted) && s.opts.OnError != nil {
		s.opts.OnError(s, outcome)
	}
	if s.opts.OnFinish != nil {
		s.opts.OnFinish(s)
	}
}

// instruments are the session metrics. A nil *instruments records nothing.
type instruments struct {
	chunks   metric.Int64Counter
	bytes    metric.Int64Counter
	rejected metric.Int64Counter
	queue    metric.Int64Histogram
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		in  instruments
		err error
	)
	if in.chunks, err = m.Int64Counter("vista.stream.chunks",
		metric.WithDescription("Audio chunks received from the backend")); err != nil {
		return nil, err
	}
	if in.bytes, err = m.Int64Counter("vista.stream.bytes",
		metric.WithDescription("Audio bytes received from the backend"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if in.rejected, err = m.Int64Counter("vista.stream.rejected",
		metric.WithDescription("Chunks rejected by the sink decoder")); err != nil {
		return nil, err
	}
	if in.queue, err = m.Int64Histogram("vista.stream.queue_depth",
		metric.WithDescription("Chunks waiting for the sink")); err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *instruments) chunk(ctx context.Context, n int) {
	if in == nil {
		return
	}
	in.chunks.Add(ctx, 1)
	in.bytes.Add(ctx, int64(n))
}

func (in *instruments) reject(ctx context.Context) {
	if in == nil {
		return
	}
	in.rejected.Add(ctx, 1)
}

func (in *instruments) depth(ctx context.Context, n int) {
	if in == nil {
		return
	}
	in.queue.Record(ctx, int64(n))
}
