package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/vista-tts/vista/internal/stream"
)

// BackendOptions configures a Backend.
type BackendOptions struct {
	// AcceptTimeout bounds the wait for a worker to accept a request.
	AcceptTimeout time.Duration
	// IdleTimeout fails a stream when no packet arrives for this long.
	IdleTimeout time.Duration
	Buffer      int
	Logger      *log.Logger
}

// Backend is a stream.Backend served by relay workers over NATS.
type Backend struct {
	conn *nats.Conn
	opts BackendOptions
}

// NewBackend returns a Backend publishing on conn.
func NewBackend(conn *nats.Conn, opts BackendOptions) *Backend {
	if opts.AcceptTimeout <= 0 {
		opts.AcceptTimeout = 5 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 8
	}
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("relay")
	}
	return &Backend{conn: conn, opts: opts}
}

// Synthesize implements stream.Backend. It subscribes to the session's audio
// subject before publishing the request, then returns once a worker has
// accepted it.
func (b *Backend) Synthesize(ctx context.Context, req stream.SynthesisRequest) (stream.Source, error) {
	id := uuid.NewString()
	sub, err := b.conn.SubscribeSync(AudioSubject(id))
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe: %w", stream.ErrBackendUnavailable, err)
	}

	data, err := json.Marshal(newRequestMessage(id, req))
	if err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("encode relay request: %w", err)
	}

	acceptCtx, cancel := context.WithTimeout(ctx, b.opts.AcceptTimeout)
	msg, err := b.conn.RequestWithContext(acceptCtx, SubjectRequest, data)
	cancel()
	if err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("%w: %w", stream.ErrBackendUnavailable, err)
	}
	var r reply
	if err := json.Unmarshal(msg.Data, &r); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("%w: bad reply: %w", stream.ErrBackendUnavailable, err)
	}
	if r.Error != "" {
		sub.Unsubscribe()
		return nil, fmt.Errorf("%w: worker: %s", stream.ErrBackendUnavailable, r.Error)
	}

	recvCtx, stop := context.WithCancel(ctx)
	src := stream.NewChanSource(b.opts.Buffer, stop)
	go b.receive(recvCtx, id, sub, src)
	b.opts.Logger.Debug("Relay stream accepted", "session", id)
	return src, nil
}

func (b *Backend) receive(ctx context.Context, id string, sub *nats.Subscription, src *stream.ChanSource) {
	defer sub.Unsubscribe()

	next := 0
	for {
		msg, err := b.nextMsg(ctx, sub)
		if err != nil {
			src.Finish(b.receiveError(ctx, src, err))
			return
		}

		var p AudioPacket
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			src.Finish(fmt.Errorf("%w: malformed packet: %w", stream.ErrSourceFailure, err))
			return
		}
		switch {
		case p.Sequence < next:
			src.Finish(fmt.Errorf("%w: duplicate packet %d, expected %d", stream.ErrSourceFailure, p.Sequence, next))
			return
		case p.Sequence > next:
			src.Finish(fmt.Errorf("%w: missing packets %d..%d", stream.ErrSourceFailure, next, p.Sequence-1))
			return
		}
		next++

		if p.Error != "" {
			src.Finish(fmt.Errorf("%w: %s", stream.ErrSourceFailure, p.Error))
			return
		}
		if len(p.Data) > 0 && !src.Send(ctx, stream.Chunk(p.Data)) {
			src.Finish(stream.ErrAborted)
			return
		}
		if p.Final {
			b.opts.Logger.Debug("Relay stream complete", "session", id, "packets", next)
			src.Finish(nil)
			return
		}
	}
}

func (b *Backend) nextMsg(ctx context.Context, sub *nats.Subscription) (*nats.Msg, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.IdleTimeout)
	defer cancel()
	return sub.NextMsgWithContext(ctx)
}

func (b *Backend) receiveError(ctx context.Context, src *stream.ChanSource, err error) error {
	select {
	case <-src.Stopped():
		return stream.ErrAborted
	default:
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", stream.ErrSourceFailure, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no audio for %s", stream.ErrSourceFailure, b.opts.IdleTimeout)
	}
	return fmt.Errorf("%w: %w", stream.ErrSourceFailure, err)
}
