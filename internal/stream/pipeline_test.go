package stream

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func newTestPipeline(sink Sink) *pipeline {
	p := newPipeline("test", sink, testLogger(), 0)
	p.start()
	return p
}

// signal simulates the sink finishing its current append.
func signal(p *pipeline, s *fakeSink, err error) {
	s.complete()
	p.sinkReady(err)
}

func TestPipelineDeliversDirectlyWhenReady(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(sink)

	p.chunkReceived(Chunk("abc"))
	if p.queue.Len() != 0 {
		t.Errorf("queue length = %d, want 0", p.queue.Len())
	}
	if !p.inFlight {
		t.Error("chunk should be in flight")
	}
	if _, accepts, _, _ := sink.snapshot(); accepts != 1 {
		t.Errorf("accepts = %d, want 1", accepts)
	}
}

func TestPipelineQueuesUntilSinkOpens(t *testing.T) {
	sink := newFakeSink()
	sink.opened = false
	p := newTestPipeline(sink)

	for _, c := range chunksOf(1, 2, 3) {
		p.chunkReceived(c)
	}
	if p.queue.Len() != 3 {
		t.Fatalf("queue length = %d, want 3", p.queue.Len())
	}

	sink.mu.Lock()
	sink.opened = true
	sink.mu.Unlock()
	p.sinkReady(nil)

	if p.queue.Len() != 2 {
		t.Errorf("queue length after one signal = %d, want 2", p.queue.Len())
	}
}

func TestPipelineBackpressure(t *testing.T) {
	for _, k := range []int{0, 1, 5, 40} {
		t.Run(fmt.Sprintf("K=%d", k), func(t *testing.T) {
			sink := newFakeSink()
			p := newTestPipeline(sink)
			input := make([]Chunk, k+1)
			for i := range input {
				input[i] = Chunk{byte(i)}
			}

			// The first chunk goes straight to the sink, which then withholds
			// readiness for k arrivals.
			for _, c := range input {
				p.chunkReceived(c)
			}
			if got := p.queue.Len(); got != k {
				t.Fatalf("queue length before ready = %d, want %d", got, k)
			}

			for i := 0; i < k; i++ {
				signal(p, sink, nil)
				if got, want := p.queue.Len(), k-i-1; got != want {
					t.Fatalf("after %d pops queue length = %d, want %d", i+1, got, want)
				}
			}
			if _, accepts, _, _ := sink.snapshot(); accepts != k+1 {
				t.Errorf("accepts = %d, want %d", accepts, k+1)
			}
		})
	}
}

func TestPipelineOneChunkPerSignal(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(sink)
	for _, c := range chunksOf(1, 1, 1, 1) {
		p.chunkReceived(c)
	}

	before := p.stats.Accepts
	signal(p, sink, nil)
	if got := p.stats.Accepts - before; got != 1 {
		t.Errorf("accepts per readiness signal = %d, want 1", got)
	}
}

func TestPipelineFinalizeWaitsForDrain(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(sink)
	for _, c := range chunksOf(100, 200, 150) {
		p.chunkReceived(c)
	}
	p.sourceTerminated(nil)

	if p.state != StateDraining {
		t.Fatalf("state = %v, want %v", p.state, StateDraining)
	}
	for i := 0; i < 3; i++ {
		if _, _, eos, _ := sink.snapshot(); eos != 0 {
			t.Fatalf("EndOfStream called with %d chunks queued", p.queue.Len())
		}
		signal(p, sink, nil)
	}

	_, accepts, eos, _ := sink.snapshot()
	if accepts != 3 || eos != 1 {
		t.Errorf("accepts = %d, eos = %d, want 3, 1", accepts, eos)
	}
	if sink.eosErrs != 0 {
		t.Errorf("EndOfStream was called while an append was in flight")
	}
	if p.state != StateFinalized {
		t.Errorf("state = %v, want %v", p.state, StateFinalized)
	}
	if !bytes.Equal(sink.joined(), bytes.Join(toBytes(chunksOf(100, 200, 150)), nil)) {
		t.Error("delivered bytes differ from received bytes")
	}
}

func TestPipelineFinalizeImmediately(t *testing.T) {
	tests := []struct {
		name   string
		chunks []Chunk
	}{
		{"no chunks", nil},
		{"all delivered", chunksOf(10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newFakeSink()
			p := newTestPipeline(sink)
			for _, c := range tt.chunks {
				p.chunkReceived(c)
				signal(p, sink, nil)
			}
			p.sourceTerminated(nil)

			if p.state != StateFinalized {
				t.Errorf("state = %v, want %v", p.state, StateFinalized)
			}
			if _, _, eos, _ := sink.snapshot(); eos != 1 {
				t.Errorf("eos = %d, want 1", eos)
			}
		})
	}
}

func TestPipelineErrorDraining(t *testing.T) {
	const m = 4
	sink := newFakeSink()
	p := newTestPipeline(sink)
	input := chunksOf(5, 6, 7, 8, 9, 10)

	for _, c := range input[:m] {
		p.chunkReceived(c)
	}
	p.sourceTerminated(errors.New("connection reset"))
	if p.state != StateErrored {
		t.Fatalf("state = %v, want %v", p.state, StateErrored)
	}

	// Late chunks after the terminal event are ignored.
	for _, c := range input[m:] {
		p.chunkReceived(c)
	}

	for i := 0; i < m; i++ {
		signal(p, sink, nil)
	}

	accepted, _, eos, _ := sink.snapshot()
	if len(accepted) != m {
		t.Errorf("sink received %d chunks, want %d", len(accepted), m)
	}
	if !bytes.Equal(sink.joined(), bytes.Join(toBytes(input[:m]), nil)) {
		t.Error("sink did not receive the buffered chunks in order")
	}
	if eos != 1 {
		t.Errorf("eos = %d, want 1", eos)
	}
	if p.state != StateErrored {
		t.Errorf("state = %v, want %v", p.state, StateErrored)
	}
	if !errors.Is(p.failure, ErrSourceFailure) {
		t.Errorf("failure = %v, want ErrSourceFailure", p.failure)
	}
	if p.stats.ChunksReceived != m {
		t.Errorf("ChunksReceived = %d, want %d", p.stats.ChunksReceived, m)
	}
}

func TestPipelineDecodeRejected(t *testing.T) {
	sink := newFakeSink()
	sink.reject = func(i int, _ Chunk) error {
		if i == 1 {
			return fmt.Errorf("%w: bad frame", ErrDecodeRejected)
		}
		return nil
	}
	p := newTestPipeline(sink)
	input := chunksOf(3, 3, 3)
	for _, c := range input {
		p.chunkReceived(c)
	}

	// Chunk 1 is rejected on hand-off and chunk 2 goes next.
	signal(p, sink, nil)
	if !p.inFlight {
		t.Fatal("expected the chunk after the rejected one to be in flight")
	}
	signal(p, sink, nil)
	p.sourceTerminated(nil)

	accepted, accepts, eos, _ := sink.snapshot()
	if accepts != 3 {
		t.Errorf("accepts = %d, want 3", accepts)
	}
	if len(accepted) != 2 || accepted[1][0] != 3 {
		t.Errorf("accepted chunks = %d, want chunks 1 and 3", len(accepted))
	}
	if len(p.rejections) != 1 || !errors.Is(p.rejections[0], ErrDecodeRejected) {
		t.Errorf("rejections = %v", p.rejections)
	}
	if eos != 1 || p.state != StateFinalized {
		t.Errorf("eos = %d, state = %v, want 1, finalized", eos, p.state)
	}
}

func TestPipelineAsyncReject(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(sink)
	p.chunkReceived(Chunk("x"))
	p.chunkReceived(Chunk("y"))

	signal(p, sink, errors.New("decoder error"))

	if p.stats.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", p.stats.Rejected)
	}
	if !errors.Is(p.rejections[0], ErrDecodeRejected) {
		t.Errorf("rejection %v should wrap ErrDecodeRejected", p.rejections[0])
	}
	if !p.inFlight {
		t.Error("next chunk should be in flight after an async reject")
	}
}

func TestPipelineAbort(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(sink)
	for _, c := range chunksOf(1, 1, 1) {
		p.chunkReceived(c)
	}
	p.abort()

	if p.state != StateAborted {
		t.Errorf("state = %v, want %v", p.state, StateAborted)
	}
	if !p.queue.IsEmpty() {
		t.Errorf("queue length = %d after abort", p.queue.Len())
	}

	signal(p, sink, nil)
	p.sourceTerminated(nil)
	if _, accepts, eos, _ := sink.snapshot(); accepts != 1 || eos != 0 {
		t.Errorf("accepts = %d, eos = %d after abort, want 1, 0", accepts, eos)
	}
}

func TestPipelineSecondTerminalIgnored(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(sink)
	p.sourceTerminated(nil)
	p.sourceTerminated(errors.New("late"))

	if p.state != StateFinalized || p.failure != nil {
		t.Errorf("state = %v, failure = %v, want finalized, nil", p.state, p.failure)
	}
}
