package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vista-tts/vista/internal/stream"
	"github.com/vista-tts/vista/internal/ui"
)

// buildRequests splits one request into one per segment, giving each the
// neighbouring segments as context. previous and next are the context of
// the whole input.
func buildRequests(base stream.SynthesisRequest, segments []string, previous, next string) []stream.SynthesisRequest {
	reqs := make([]stream.SynthesisRequest, 0, len(segments))
	for i, seg := range segments {
		req := base.Clone()
		req.Text = seg
		req.PreviousText = previous
		if i > 0 {
			req.PreviousText = segments[i-1]
		}
		req.NextText = next
		if i < len(segments)-1 {
			req.NextText = segments[i+1]
		}
		reqs = append(reqs, req)
	}
	return reqs
}

// playback plays requests one after another on a controller.
type playback struct {
	ctrl     *stream.Controller
	requests []stream.SynthesisRequest
	// finished is called with every session once it is done.
	finished func(*stream.Session)

	mu       sync.Mutex
	started  time.Time
	current  *stream.Session
	index    int
	sessions []*stream.Session
	err      error
	done     bool
	aborted  bool
}

func newPlayback(ctrl *stream.Controller, requests []stream.SynthesisRequest) *playback {
	return &playback{ctrl: ctrl, requests: requests, started: time.Now()}
}

// run plays every request in order and stops at the first failure.
func (p *playback) run(ctx context.Context) error {
	err := p.play(ctx)
	p.mu.Lock()
	p.err = err
	p.done = true
	p.mu.Unlock()
	return err
}

func (p *playback) play(ctx context.Context) error {
	for i, req := range p.requests {
		p.mu.Lock()
		aborted := p.aborted
		p.mu.Unlock()
		if aborted {
			return stream.ErrAborted
		}

		s, err := p.ctrl.Start(ctx, req)
		if err != nil {
			return err
		}

		p.mu.Lock()
		p.current = s
		p.index = i
		p.sessions = append(p.sessions, s)
		aborted = p.aborted
		p.mu.Unlock()
		if aborted {
			s.Abort()
		}

		err = s.Wait(ctx)
		if ctx.Err() != nil {
			s.Abort()
			err = ctx.Err()
		}
		if p.finished != nil {
			p.finished(s)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// abort stops the current session and any that would follow.
func (p *playback) abort() {
	p.mu.Lock()
	p.aborted = true
	s := p.current
	p.mu.Unlock()
	if s != nil {
		s.Abort()
	}
}

// Aborted reports whether abort was called.
func (p *playback) Aborted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aborted
}

// Sessions returns the sessions started so far.
func (p *playback) Sessions() []*stream.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*stream.Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

func (p *playback) snapshot() ui.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := ui.Snapshot{
		Segment:  p.index,
		Segments: len(p.requests),
		Elapsed:  time.Since(p.started),
		Done:     p.done,
	}
	if p.current != nil {
		snap.Voice = p.current.Request().VoiceID
		snap.Stats = p.current.Stats()
	}
	if p.err != nil && !errors.Is(p.err, stream.ErrAborted) && !errors.Is(p.err, context.Canceled) {
		snap.Err = p.err
	}
	return snap
}
