package stream

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestController(t *testing.T, backend Backend, sink *fakeSink, opts Options) *Controller {
	t.Helper()
	opts.Logger = testLogger()
	c, err := NewController(backend, func(MediaType) (Sink, error) { return sink, nil }, opts)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitSession(t *testing.T, s *Session) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("session %s did not finish, state %v", s.ID(), s.State())
	}
	return err
}

func TestSessionExampleScenario(t *testing.T) {
	input := chunksOf(100, 200, 150)
	backend := &scriptedBackend{chunks: input}
	sink := newFakeSink()
	sink.delay = func(int) time.Duration { return 50 * time.Millisecond }

	c := newTestController(t, backend, sink, DefaultOptions())
	s, err := c.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := waitSession(t, s); err != nil {
		t.Fatalf("session error = %v", err)
	}

	accepted, accepts, eos, released := sink.snapshot()
	if accepts != 3 {
		t.Errorf("accepts = %d, want 3", accepts)
	}
	for i, c := range accepted {
		if len(c) != len(input[i]) {
			t.Errorf("accept %d got %d bytes, want %d", i, len(c), len(input[i]))
		}
	}
	if eos != 1 || sink.eosErrs != 0 {
		t.Errorf("eos = %d (errors %d), want 1 (0)", eos, sink.eosErrs)
	}
	if released != 1 {
		t.Errorf("released = %d, want 1", released)
	}

	st := s.Stats()
	if st.Queued != 0 || st.State != StateFinalized || st.Termination != TerminationCompleted {
		t.Errorf("stats = %+v", st)
	}
	if st.BytesReceived != 450 || st.ChunksReceived != 3 {
		t.Errorf("received %d bytes in %d chunks, want 450 in 3", st.BytesReceived, st.ChunksReceived)
	}
	if s.Locator() != "fake://sink" {
		t.Errorf("Locator() = %q", s.Locator())
	}
}

func TestSessionOrderPreservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 5; run++ {
		n := rng.Intn(60)
		sizes := make([]int, n)
		for i := range sizes {
			sizes[i] = 1 + rng.Intn(64)
		}
		delays := make([]time.Duration, n)
		for i := range delays {
			delays[i] = time.Duration(rng.Intn(3)) * time.Millisecond
		}
		input := make([]Chunk, n)
		for i, sz := range sizes {
			c := make(Chunk, sz)
			rng.Read(c)
			input[i] = c
		}

		backend := &scriptedBackend{chunks: input}
		sink := newFakeSink()
		sink.delay = func(i int) time.Duration { return delays[i] }
		c := newTestController(t, backend, sink, DefaultOptions())

		s, err := c.Start(context.Background(), testRequest())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := waitSession(t, s); err != nil {
			t.Fatalf("run %d: session error = %v", run, err)
		}

		if !bytes.Equal(sink.joined(), bytes.Join(toBytes(input), nil)) {
			t.Errorf("run %d: delivered bytes differ from input", run)
		}
		if _, accepts, _, _ := sink.snapshot(); accepts != n {
			t.Errorf("run %d: accepts = %d, want %d", run, accepts, n)
		}
	}
}

func TestSessionSourceFailure(t *testing.T) {
	input := chunksOf(10, 20, 30)
	backend := &scriptedBackend{chunks: input, err: errors.New("stream reset")}
	sink := newFakeSink()
	sink.delay = func(int) time.Duration { return time.Millisecond }

	var calls atomic.Int32
	errs := make(chan error, 4)
	opts := DefaultOptions()
	opts.OnError = func(_ *Session, err error) {
		errs <- err
		calls.Add(1)
	}
	c := newTestController(t, backend, sink, opts)

	s, err := c.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	err = waitSession(t, s)
	if !errors.Is(err, ErrSourceFailure) {
		t.Fatalf("session error = %v, want ErrSourceFailure", err)
	}
	var serr *SessionError
	if !errors.As(err, &serr) || serr.ID != s.ID() {
		t.Errorf("error %v should be a *SessionError for %s", err, s.ID())
	}
	if s.State() != StateErrored {
		t.Errorf("state = %v, want %v", s.State(), StateErrored)
	}

	// OnError runs after Done is closed.
	if !waitFor(func() bool { return calls.Load() == 1 }, time.Second) {
		t.Fatalf("OnError called %d times, want 1", calls.Load())
	}
	if got := <-errs; !errors.Is(got, ErrSourceFailure) {
		t.Errorf("OnError got %v", got)
	}
	if !bytes.Equal(sink.joined(), bytes.Join(toBytes(input), nil)) {
		t.Error("buffered audio was not played out")
	}
}

func TestSessionAbort(t *testing.T) {
	hold := make(chan struct{})
	backend := &scriptedBackend{chunks: chunksOf(1, 2, 3), hold: hold}
	sink := newFakeSink() // never signals readiness on its own
	c := newTestController(t, backend, sink, DefaultOptions())

	s, err := c.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !waitFor(func() bool { return s.Stats().ChunksReceived == 3 }, time.Second) {
		t.Fatalf("received %d chunks, want 3", s.Stats().ChunksReceived)
	}

	s.Abort()
	s.Abort()

	if !errors.Is(s.Err(), ErrAborted) {
		t.Errorf("Err() = %v, want ErrAborted", s.Err())
	}
	if s.State() != StateAborted {
		t.Errorf("state = %v, want %v", s.State(), StateAborted)
	}
	if _, _, eos, released := sink.snapshot(); released != 1 || eos != 0 {
		t.Errorf("released = %d, eos = %d, want 1, 0", released, eos)
	}
	select {
	case <-backend.sources[0].Stopped():
	default:
		t.Error("source was not closed on abort")
	}
}

func TestSessionContextCancel(t *testing.T) {
	backend := &scriptedBackend{chunks: chunksOf(1), hold: make(chan struct{})}
	sink := newFakeSink()
	c := newTestController(t, backend, sink, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	s, err := c.Start(ctx, testRequest())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	if err := waitSession(t, s); !errors.Is(err, ErrAborted) {
		t.Errorf("session error = %v, want ErrAborted", err)
	}
}

func TestSessionHighWater(t *testing.T) {
	backend := &scriptedBackend{chunks: chunksOf(1, 1, 1, 1, 1, 1, 1, 1)}
	sink := newFakeSink()
	opts := Options{HighWater: 3, LowWater: 1}
	c := newTestController(t, backend, sink, opts)

	s, err := c.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// One chunk in flight, three queued, then the loop stops receiving and the
	// producer blocks on its next send.
	if !waitFor(func() bool { return s.Stats().Queued == 3 }, time.Second) {
		t.Fatalf("queued = %d, want 3", s.Stats().Queued)
	}
	time.Sleep(30 * time.Millisecond)
	if got := backend.sentCount(); got != 4 {
		t.Errorf("producer sent %d chunks while throttled, want 4", got)
	}

	// Drain to the low water mark and reading resumes.
	for _, want := range []int{2, 3} {
		sink.finish(nil)
		if !waitFor(func() bool { _, n, _, _ := sink.snapshot(); return n >= want }, time.Second) {
			t.Fatalf("sink did not receive chunk %d", want)
		}
	}
	if !waitFor(func() bool { return backend.sentCount() > 4 }, time.Second) {
		t.Error("producer did not resume after the queue drained")
	}

	go func() {
		for {
			select {
			case <-s.Done():
				return
			case <-time.After(time.Millisecond):
				if !sink.Ready() {
					sink.finish(nil)
				}
			}
		}
	}()
	if err := waitSession(t, s); err != nil {
		t.Fatalf("session error = %v", err)
	}
	if got := s.Stats().PeakQueued; got > 3 {
		t.Errorf("PeakQueued = %d, want <= 3", got)
	}
	if _, accepts, _, _ := sink.snapshot(); accepts != 8 {
		t.Errorf("accepts = %d, want 8", accepts)
	}
}

func TestControllerBackendUnavailable(t *testing.T) {
	sink := newFakeSink()
	backend := BackendFunc(func(context.Context, SynthesisRequest) (Source, error) {
		return nil, errors.New("no runtime")
	})
	c := newTestController(t, backend, sink, DefaultOptions())

	s, err := c.Start(context.Background(), testRequest())
	if s != nil {
		t.Error("Start() returned a session on failure")
	}
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Start() error = %v, want ErrBackendUnavailable", err)
	}
	if _, _, _, released := sink.snapshot(); released != 1 {
		t.Errorf("sink released %d times, want 1", released)
	}
	if c.Active() != nil {
		t.Error("controller should have no active session")
	}
}

func TestControllerInvalidRequest(t *testing.T) {
	c := newTestController(t, &scriptedBackend{}, newFakeSink(), DefaultOptions())
	req := testRequest()
	req.VoiceSettings.Speed = 2

	_, err := c.Start(context.Background(), req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Start() error = %v, want ErrInvalidRequest", err)
	}
	if IsRecoverable(err) {
		t.Error("invalid requests should not be recoverable")
	}
}

func TestControllerStartAbortsPrevious(t *testing.T) {
	backend := &scriptedBackend{chunks: chunksOf(4), hold: make(chan struct{})}
	var mu sync.Mutex
	var sinks []*fakeSink
	c, err := NewController(backend, func(MediaType) (Sink, error) {
		mu.Lock()
		defer mu.Unlock()
		s := newFakeSink()
		sinks = append(sinks, s)
		return s, nil
	}, Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	defer c.Close()

	first, err := c.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	second, err := c.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if !errors.Is(first.Err(), ErrAborted) {
		t.Errorf("first session Err() = %v, want ErrAborted", first.Err())
	}
	if c.Active() != second {
		t.Error("second session should be active")
	}
	if first.ID() == second.ID() {
		t.Error("sessions share an ID")
	}
	if _, _, _, released := sinks[0].snapshot(); released != 1 {
		t.Errorf("first sink released %d times, want 1", released)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !errors.Is(second.Err(), ErrAborted) {
		t.Errorf("second session Err() = %v, want ErrAborted", second.Err())
	}
	if _, err := c.Start(context.Background(), testRequest()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Start() after Close error = %v, want ErrSessionClosed", err)
	}
}

func TestControllerConcurrentStart(t *testing.T) {
	backend := &scriptedBackend{chunks: chunksOf(4), hold: make(chan struct{})}
	c, err := NewController(backend, func(MediaType) (Sink, error) {
		time.Sleep(5 * time.Millisecond)
		return newFakeSink(), nil
	}, Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	const starts = 4
	sessions := make(chan *Session, starts)
	var wg sync.WaitGroup
	for i := 0; i < starts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Start(context.Background(), testRequest())
			if err != nil {
				t.Errorf("Start() error = %v", err)
				return
			}
			sessions <- s
		}()
	}
	wg.Wait()
	close(sessions)

	var all []*Session
	live := 0
	for s := range sessions {
		all = append(all, s)
		select {
		case <-s.Done():
		default:
			live++
			if c.Active() != s {
				t.Errorf("live session %s is not the active one", s.ID())
			}
		}
	}
	if live != 1 {
		t.Errorf("live sessions = %d, want 1", live)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for _, s := range all {
		select {
		case <-s.Done():
		default:
			t.Errorf("session %s still running after Close", s.ID())
		}
	}
}

func TestControllerActiveClearedWhenFinished(t *testing.T) {
	sink := newFakeSink()
	sink.delay = func(int) time.Duration { return time.Millisecond }
	c := newTestController(t, &scriptedBackend{chunks: chunksOf(8, 8)}, sink, DefaultOptions())

	s, err := c.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := waitSession(t, s); err != nil {
		t.Fatalf("session error = %v", err)
	}
	if !waitFor(func() bool { return c.Active() == nil }, time.Second) {
		t.Error("Active() still returns a finished session")
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", DefaultOptions(), false},
		{"bounded", Options{HighWater: 10, LowWater: 2}, false},
		{"low above high", Options{HighWater: 2, LowWater: 2}, true},
		{"negative", Options{WarnQueued: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
