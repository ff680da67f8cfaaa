package cache

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/vista-tts/vista/internal/stream"
)

// Backend wraps a stream.Backend with a DiskCache. A hit replays the cached
// audio in fixed-size chunks; a miss passes the inner stream through and
// stores it once the stream completes without error.
type Backend struct {
	inner     stream.Backend
	store     *DiskCache
	chunkSize int
	logger    *log.Logger
}

// NewBackend returns a caching decorator around inner. A chunkSize of zero or
// less uses 4096 bytes.
func NewBackend(inner stream.Backend, store *DiskCache, chunkSize int) *Backend {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	return &Backend{
		inner:     inner,
		store:     store,
		chunkSize: chunkSize,
		logger:    log.Default().WithPrefix("cache"),
	}
}

// Synthesize implements stream.Backend.
func (b *Backend) Synthesize(ctx context.Context, req stream.SynthesisRequest) (stream.Source, error) {
	key := req.Key()
	if data, ok := b.store.Get(key); ok {
		b.logger.Debug("Cache hit", "key", short(key), "bytes", len(data))
		return b.replay(ctx, data), nil
	}

	src, err := b.inner.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("Cache miss", "key", short(key))
	return b.tee(ctx, key, src), nil
}

func (b *Backend) replay(ctx context.Context, data []byte) stream.Source {
	out := stream.NewChanSource(1, nil)
	go func() {
		for off := 0; off < len(data); off += b.chunkSize {
			end := min(off+b.chunkSize, len(data))
			if !out.Send(ctx, stream.Chunk(data[off:end])) {
				out.Finish(stream.ErrAborted)
				return
			}
		}
		out.Finish(nil)
	}()
	return out
}

func (b *Backend) tee(ctx context.Context, key string, src stream.Source) stream.Source {
	out := stream.NewChanSource(1, func() { src.Close() })
	go func() {
		var audio []byte
		chunks := src.Chunks()
		for {
			select {
			case c, ok := <-chunks:
				if !ok {
					err := src.Err()
					select {
					case <-out.Stopped():
						err = stream.ErrAborted
					default:
					}
					b.complete(key, audio, err)
					out.Finish(err)
					return
				}
				audio = append(audio, c...)
				if !out.Send(ctx, c) {
					src.Close()
					out.Finish(stream.ErrAborted)
					return
				}
			case <-out.Stopped():
				out.Finish(stream.ErrAborted)
				return
			}
		}
	}()
	return out
}

func (b *Backend) complete(key string, audio []byte, err error) {
	if err != nil || len(audio) == 0 {
		return
	}
	if err := b.store.Put(key, audio); err != nil {
		b.logger.Warn("Failed to cache audio", "key", short(key), "error", err)
		return
	}
	b.logger.Debug("Cached audio", "key", short(key), "bytes", len(audio))
}
