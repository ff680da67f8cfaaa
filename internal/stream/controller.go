package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/vista-tts/vista/internal/stream"

// Options configures a Controller.
type Options struct {
	// HighWater pauses reading from the source once this many chunks are
	// queued. Zero leaves the queue unbounded.
	HighWater int
	// LowWater resumes reading once the queue has drained to this length.
	LowWater int
	// WarnQueued logs a warning once per session when the queue grows past it.
	WarnQueued int

	// OnError is called once per failed session, after it has released its
	// resources. It is not called for aborted sessions.
	OnError func(*Session, error)
	// OnFinish is called once per session after OnError.
	OnFinish func(*Session)

	Logger *log.Logger
}

// DefaultOptions returns an unbounded queue policy with a warning past 256
// queued chunks.
func DefaultOptions() Options {
	return Options{WarnQueued: 256}
}

// Validate checks the capacity policy.
func (o Options) Validate() error {
	if o.HighWater < 0 || o.LowWater < 0 || o.WarnQueued < 0 {
		return fmt.Errorf("stream: queue thresholds must not be negative")
	}
	if o.HighWater > 0 && o.LowWater >= o.HighWater {
		return fmt.Errorf("stream: low water (%d) must be below high water (%d)", o.LowWater, o.HighWater)
	}
	return nil
}

// Controller starts playback sessions. At most one session is active at a
// time; starting a new one aborts the previous session.
type Controller struct {
	backend Backend
	sinks   SinkFactory
	opts    Options
	logger  *log.Logger
	tracer  trace.Tracer
	metrics *instruments

	// startMu serializes Start so only one session is ever committed.
	startMu sync.Mutex

	mu     sync.Mutex
	active *Session
	closed bool
}

// NewController returns a controller that synthesizes with backend and plays
// through sinks opened by newSink.
func NewController(backend Backend, newSink SinkFactory, opts Options) (*Controller, error) {
	if backend == nil {
		return nil, fmt.Errorf("stream: backend is required")
	}
	if newSink == nil {
		return nil, fmt.Errorf("stream: sink factory is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("stream")
	}

	metrics, err := newInstruments(otel.Meter(instrumentationName))
	if err != nil {
		logger.Warn("metrics disabled", "err", err)
		metrics = nil
	}

	return &Controller{
		backend: backend,
		sinks:   newSink,
		opts:    opts,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		metrics: metrics,
	}, nil
}

// Start validates req, opens a fresh sink and queue, invokes the backend and
// starts the session's event loop. The session lives until ctx is cancelled,
// it is aborted, or its audio has played out.
func (c *Controller) Start(ctx context.Context, req SynthesisRequest) (*Session, error) {
	req = req.Clone()
	if err := req.Validate(); err != nil {
		return nil, &SessionError{Op: "start", Err: err}
	}
	media, err := ParseOutputFormat(req.Format())
	if err != nil {
		return nil, &SessionError{Op: "start", Err: err}
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &SessionError{Op: "start", Err: ErrSessionClosed}
	}
	prev := c.active
	c.active = nil
	c.mu.Unlock()

	if prev != nil {
		c.logger.Debug("aborting previous session", "session", prev.ID())
		prev.Abort()
	}

	id := uuid.NewString()
	sink, err := c.sinks(media)
	if err != nil {
		return nil, &SessionError{ID: id, Op: "open sink", Err: err}
	}

	spanCtx, span := c.tracer.Start(ctx, "stream.session", trace.WithAttributes(
		attribute.String("vista.session.id", id),
		attribute.String("vista.voice", req.VoiceID),
		attribute.String("vista.model", req.ModelID),
		attribute.String("vista.format", media.Format),
		attribute.Int("vista.characters", len([]rune(req.Text))),
	))

	src, err := c.backend.Synthesize(spanCtx, req)
	if err != nil {
		err = backendUnavailable(err)
		span.RecordError(err)
		span.End()
		if rerr := sink.Release(); rerr != nil {
			c.logger.Warn("releasing sink", "session", id, "err", rerr)
		}
		return nil, &SessionError{ID: id, Op: "start", Err: err}
	}

	s := &Session{
		id:      id,
		request: req,
		media:   media,
		source:  src,
		sink:    sink,
		opts:    c.opts,
		logger:  c.logger,
		started: time.Now(),
		p:       newPipeline(id, sink, c.logger, c.opts.WarnQueued),
		abortCh: make(chan struct{}),
		done:    make(chan struct{}),
		span:    span,
		metrics: c.metrics,
	}
	s.p.onReject = func(error) { s.metrics.reject(spanCtx) }
	s.p.start()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		go s.run(spanCtx)
		s.Abort()
		return nil, &SessionError{ID: id, Op: "start", Err: ErrSessionClosed}
	}
	c.active = s
	c.mu.Unlock()

	c.logger.Debug("session started", "session", id, "voice", req.VoiceID, "model", req.ModelID, "format", media.Format)
	go s.run(spanCtx)
	go c.clearWhenDone(s)
	return s, nil
}

// clearWhenDone drops s from the controller once it has finished, unless a
// newer session has replaced it.
func (c *Controller) clearWhenDone(s *Session) {
	<-s.Done()
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()
}

// Active returns the running session, or nil once it has finished.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close aborts the active session and makes the controller inert.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.active
	c.active = nil
	c.mu.Unlock()

	if s != nil {
		s.Abort()
	}
	return nil
}
