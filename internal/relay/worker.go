package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vista-tts/vista/internal/stream"
)

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Queue         string
	MaxConcurrent int
	// Timeout bounds one synthesis from acceptance to the final packet.
	Timeout time.Duration
	Logger  *log.Logger
}

// Worker serves relay requests with an inner backend.
type Worker struct {
	conn    *nats.Conn
	backend stream.Backend
	opts    WorkerOptions

	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Int32

	requests metric.Int64Counter
	bytes    metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

// NewWorker returns a worker that has not subscribed yet.
func NewWorker(parent context.Context, conn *nats.Conn, backend stream.Backend, opts WorkerOptions) *Worker {
	if opts.Queue == "" {
		opts.Queue = DefaultQueue
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("relay")
	}

	ctx, cancel := context.WithCancel(parent)
	w := &Worker{
		conn:    conn,
		backend: backend,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}

	meter := otel.Meter("github.com/vista-tts/vista/internal/relay")
	w.requests, _ = meter.Int64Counter("vista.relay.requests",
		metric.WithDescription("Relay requests by outcome"))
	w.bytes, _ = meter.Int64Counter("vista.relay.bytes",
		metric.WithDescription("Audio bytes published"), metric.WithUnit("By"))
	w.inflight, _ = meter.Int64UpDownCounter("vista.relay.inflight",
		metric.WithDescription("Streams being served"))
	return w
}

// Start subscribes to SubjectRequest in the worker queue group.
func (w *Worker) Start() error {
	sub, err := w.conn.QueueSubscribe(SubjectRequest, w.opts.Queue, w.handleRequest)
	if err != nil {
		return err
	}
	w.sub = sub
	w.opts.Logger.Info("Relay worker listening", "subject", SubjectRequest, "queue", w.opts.Queue)
	return nil
}

// Active reports how many streams are being served.
func (w *Worker) Active() int { return int(w.active.Load()) }

// Close stops accepting requests, cancels running streams and waits for them.
func (w *Worker) Close() {
	if w.sub != nil {
		_ = w.sub.Drain()
	}
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) handleRequest(msg *nats.Msg) {
	var req RequestMessage
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		w.opts.Logger.Warn("Failed to decode relay request", "error", err)
		w.respond(msg, reply{Error: "malformed request"})
		w.count("malformed")
		return
	}
	if req.SessionID == "" {
		w.respond(msg, reply{Error: "missing session id"})
		w.count("malformed")
		return
	}

	if int(w.active.Add(1)) > w.opts.MaxConcurrent {
		w.active.Add(-1)
		w.respond(msg, reply{SessionID: req.SessionID, Error: ErrBusy.Error()})
		w.count("busy")
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.opts.Timeout)
	src, err := w.backend.Synthesize(ctx, req.SynthesisRequest())
	if err != nil {
		cancel()
		w.active.Add(-1)
		w.opts.Logger.Warn("Relay synthesis rejected", "session", req.SessionID, "error", err)
		w.respond(msg, reply{SessionID: req.SessionID, Error: err.Error()})
		w.count("rejected")
		return
	}
	w.respond(msg, reply{SessionID: req.SessionID})

	w.wg.Add(1)
	w.inflight.Add(context.Background(), 1)
	go func() {
		defer w.wg.Done()
		defer w.active.Add(-1)
		defer w.inflight.Add(context.Background(), -1)
		defer cancel()
		w.serve(ctx, req.SessionID, src)
	}()
}

func (w *Worker) serve(ctx context.Context, id string, src stream.Source) {
	defer src.Close()

	subject := AudioSubject(id)
	seq := 0
	publish := func(p AudioPacket) bool {
		p.SessionID = id
		p.Sequence = seq
		seq++
		data, err := json.Marshal(p)
		if err == nil {
			err = w.conn.Publish(subject, data)
		}
		if err != nil {
			w.opts.Logger.Warn("Failed to publish audio packet", "session", id, "error", err)
			return false
		}
		return true
	}

	var sent int64
	for {
		select {
		case c, ok := <-src.Chunks():
			if !ok {
				if err := src.Err(); err != nil {
					publish(AudioPacket{Error: err.Error()})
					w.count("failed")
					w.opts.Logger.Warn("Relay stream failed", "session", id, "error", err)
					return
				}
				publish(AudioPacket{Final: true})
				w.count("completed")
				w.opts.Logger.Debug("Relay stream complete", "session", id, "bytes", sent, "packets", seq)
				return
			}
			if !publish(AudioPacket{Data: c}) {
				w.count("failed")
				return
			}
			sent += int64(len(c))
			w.bytes.Add(ctx, int64(len(c)))
		case <-ctx.Done():
			reason := "worker shutting down"
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				reason = "synthesis timed out"
			}
			publish(AudioPacket{Error: reason})
			w.count("cancelled")
			return
		}
	}
}

func (w *Worker) respond(msg *nats.Msg, r reply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		w.opts.Logger.Warn("Failed to reply to relay request", "error", err)
	}
}

func (w *Worker) count(outcome string) {
	w.requests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
