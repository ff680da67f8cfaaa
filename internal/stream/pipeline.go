package stream

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// Stats is a snapshot of a session's counters.
type Stats struct {
	BytesReceived   int64
	ChunksReceived  int
	BytesDelivered  int64
	ChunksDelivered int
	Accepts         int // Accept calls, including rejected chunks
	Rejected        int
	Queued          int
	QueuedBytes     int
	PeakQueued      int
	State           State
	Termination     Termination
}

// pipeline holds the per-session state machine. Every method runs on the
// session's event loop, so none of them lock.
type pipeline struct {
	id     string
	sink   Sink
	queue  *BufferQueue
	logger *log.Logger

	state      State
	term       Termination
	inFlight   bool
	finalized  bool
	failure    error
	warnQueued int
	warned     bool

	stats      Stats
	rejections []error
	onReject   func(error)
}

func newPipeline(id string, sink Sink, logger *log.Logger, warnQueued int) *pipeline {
	return &pipeline{
		id:         id,
		sink:       sink,
		queue:      NewBufferQueue(minQueueCapacity),
		logger:     logger,
		state:      StateIdle,
		warnQueued: warnQueued,
	}
}

func (p *pipeline) transition(next State) {
	if p.state == next {
		return
	}
	if !p.state.CanTransition(next) {
		p.logger.Warn("ignoring invalid transition", "session", p.id, "from", p.state, "to", next)
		return
	}
	p.logger.Debug("state", "session", p.id, "from", p.state, "to", next)
	p.state = next
}

func (p *pipeline) start() {
	p.transition(StateStreaming)
}

// chunkReceived hands c straight to the sink when nothing is waiting ahead of
// it, otherwise queues it.
func (p *pipeline) chunkReceived(c Chunk) {
	if p.term != TerminationNone || p.state.IsTerminal() {
		p.logger.Warn("dropping chunk after terminal event", "session", p.id, "bytes", len(c))
		return
	}

	p.stats.ChunksReceived++
	p.stats.BytesReceived += int64(len(c))
	if p.stats.ChunksReceived%10 == 0 {
		p.logger.Debug("received chunks", "session", p.id, "chunks", p.stats.ChunksReceived, "bytes", p.stats.BytesReceived)
	}

	if !p.inFlight && p.queue.IsEmpty() && p.sink.Ready() {
		if p.deliver(c) {
			return
		}
		// Rejected synchronously; the sink is still idle.
		p.drain()
		return
	}

	p.queue.Push(c)
	if p.warnQueued > 0 && !p.warned && p.queue.Len() > p.warnQueued {
		p.warned = true
		p.logger.Warn("playback is falling behind", "session", p.id, "queued", p.queue.Len(), "bytes", p.queue.Bytes())
	}
}

// sinkReady handles one readiness signal from the sink. A non-nil err means
// the previously accepted chunk was rejected by the decoder.
func (p *pipeline) sinkReady(err error) {
	if p.finalized || p.state == StateAborted {
		return
	}
	if err != nil {
		p.reject(err)
	}
	p.inFlight = false
	p.drain()
	p.maybeFinalize()
}

// sourceTerminated records the source's terminal event. err is nil when the
// source completed.
func (p *pipeline) sourceTerminated(err error) {
	if p.term != TerminationNone || p.state.IsTerminal() {
		return
	}
	if err == nil {
		p.term = TerminationCompleted
		p.logger.Debug("source completed", "session", p.id, "chunks", p.stats.ChunksReceived, "bytes", p.stats.BytesReceived)
	} else {
		p.term = TerminationFailed
		p.failure = sourceFailure(err)
		p.logger.Error("source failed", "session", p.id, "err", err, "queued", p.queue.Len())
		p.transition(StateErrored)
	}
	p.drain()
	p.maybeFinalize()
}

// abort stops the machine and drops queued chunks.
func (p *pipeline) abort() {
	if p.state == StateAborted {
		return
	}
	if p.finalized {
		return
	}
	p.queue.Clear()
	p.transition(StateAborted)
}

// deliver hands c to the sink. It returns false if the sink rejected it.
func (p *pipeline) deliver(c Chunk) bool {
	p.stats.Accepts++
	if err := p.sink.Accept(c); err != nil {
		p.reject(err)
		return false
	}
	p.inFlight = true
	p.stats.ChunksDelivered++
	p.stats.BytesDelivered += int64(len(c))
	return true
}

// drain hands the oldest queued chunk to the sink, skipping past chunks the
// sink rejects synchronously. At most one chunk is left in flight.
func (p *pipeline) drain() {
	for !p.inFlight && p.sink.Ready() {
		c, ok := p.queue.PopFront()
		if !ok {
			return
		}
		p.deliver(c)
	}
}

func (p *pipeline) reject(err error) {
	if !errors.Is(err, ErrDecodeRejected) {
		err = fmt.Errorf("%w: %w", ErrDecodeRejected, err)
	}
	p.stats.Rejected++
	p.rejections = append(p.rejections, err)
	p.logger.Warn("chunk rejected", "session", p.id, "err", err)
	if p.onReject != nil {
		p.onReject(err)
	}
}

// maybeFinalize signals end of stream once the source has terminated, the
// queue is empty and nothing is in flight.
func (p *pipeline) maybeFinalize() {
	if p.term == TerminationNone || p.finalized || p.state == StateAborted {
		return
	}
	if !p.queue.IsEmpty() || p.inFlight {
		if p.state == StateStreaming {
			p.transition(StateDraining)
		}
		return
	}

	if err := p.sink.EndOfStream(); err != nil {
		p.logger.Error("end of stream", "session", p.id, "err", err)
		if p.failure == nil && p.term == TerminationCompleted {
			p.failure = err
		}
	}
	p.finalized = true
	if p.term == TerminationCompleted {
		p.transition(StateFinalized)
	}
}

func (p *pipeline) snapshot() Stats {
	s := p.stats
	s.Queued = p.queue.Len()
	s.QueuedBytes = p.queue.Bytes()
	s.PeakQueued = p.queue.Peak()
	s.State = p.state
	s.Termination = p.term
	return s
}
