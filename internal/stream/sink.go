package stream

import "context"

// Sink is a real-time decoder/player that accepts one chunk at a time.
//
// Accept must not block. When the sink has finished with the accepted chunk it
// sends exactly one value on Notify: nil when it is ready for the next chunk,
// or an error wrapping ErrDecodeRejected when the chunk turned out to be
// undecodable after it was accepted. Either way the sink is ready again.
type Sink interface {
	// Ready reports whether no append is in flight.
	Ready() bool
	// Accept hands a chunk to the decoder.
	Accept(Chunk) error
	// Notify delivers readiness signals.
	Notify() <-chan error
	// EndOfStream signals that no more chunks follow. It fails with
	// ErrInvalidFinalizeState while an append is in flight.
	EndOfStream() error
	// Release tears down player resources. It is idempotent.
	Release() error
}

// Locator is implemented by sinks that expose a playable handle, such as the
// path of a file being written. The handle is revoked on Release.
type Locator interface {
	Locator() string
}

// Player is implemented by sinks whose audio keeps playing after EndOfStream.
// Done is closed once playback has fully drained.
type Player interface {
	Done() <-chan struct{}
}

// SinkFactory opens a fresh sink for the negotiated media type.
type SinkFactory func(MediaType) (Sink, error)

// Source delivers the ordered chunks of one synthesis call.
//
// Chunks is closed exactly once, as the terminal event. After it is closed,
// Err returns nil if the stream completed or the failure otherwise. Close
// stops local consumption; the remote call may keep running.
type Source interface {
	Chunks() <-chan Chunk
	Err() error
	Close() error
}

// Backend starts synthesis calls. Synthesize must return without waiting for
// audio; it reports a call that cannot be initiated as ErrBackendUnavailable.
type Backend interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (Source, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req SynthesisRequest) (Source, error)

// Synthesize calls f.
func (f BackendFunc) Synthesize(ctx context.Context, req SynthesisRequest) (Source, error) {
	return f(ctx, req)
}
