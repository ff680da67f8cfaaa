package audio

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// Sample format played by the device: signed 16-bit little-endian PCM.
const (
	BitDepth       = 16
	BytesPerSample = BitDepth / 8
	DefaultChannel = 1
)

var (
	// ErrContextExists is returned by NewContext when the process already
	// owns an audio context.
	ErrContextExists = errors.New("audio context already created")

	// ErrContextTimeout is returned when the device does not become ready.
	ErrContextTimeout = errors.New("audio context initialization timeout")
)

// Player is one playing stream on an Output.
type Player interface {
	Play()
	IsPlaying() bool
	SetVolume(volume float64)
	Close() error
}

// Output creates players that pull audio from a reader.
type Output interface {
	NewPlayer(r io.Reader) Player
	SampleRate() int
	ChannelCount() int
}

// ContextOptions configures the device context.
type ContextOptions struct {
	SampleRate   int
	ChannelCount int
	BufferSize   time.Duration // zero picks a platform default
	ReadyTimeout time.Duration
}

// Context is the process-wide oto context. oto allows only one per process,
// so it is created once by NewContext and passed to whatever needs it.
type Context struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
}

var (
	contextMu      sync.Mutex
	contextCreated bool
)

// NewContext opens the audio device. A second call fails with ErrContextExists.
func NewContext(opts ContextOptions) (*Context, error) {
	contextMu.Lock()
	defer contextMu.Unlock()

	if contextCreated {
		return nil, ErrContextExists
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", opts.SampleRate)
	}
	if opts.ChannelCount == 0 {
		opts.ChannelCount = DefaultChannel
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = platformBufferSize()
	}
	if opts.ReadyTimeout == 0 {
		opts.ReadyTimeout = 5 * time.Second
	}

	log.Debug("Initializing audio context",
		"sample_rate", opts.SampleRate,
		"channels", opts.ChannelCount,
		"buffer_size", opts.BufferSize)

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   opts.SampleRate,
		ChannelCount: opts.ChannelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   opts.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(opts.ReadyTimeout):
		// oto contexts cannot be closed; the device stays claimed.
		contextCreated = true
		return nil, ErrContextTimeout
	}

	contextCreated = true
	return &Context{ctx: ctx, sampleRate: opts.SampleRate, channels: opts.ChannelCount}, nil
}

func platformBufferSize() time.Duration {
	switch runtime.GOOS {
	case "darwin":
		return 100 * time.Millisecond
	case "windows":
		return 80 * time.Millisecond
	default:
		return 50 * time.Millisecond
	}
}

// NewPlayer implements Output.
func (c *Context) NewPlayer(r io.Reader) Player {
	return c.ctx.NewPlayer(r)
}

// SampleRate implements Output.
func (c *Context) SampleRate() int { return c.sampleRate }

// ChannelCount implements Output.
func (c *Context) ChannelCount() int { return c.channels }

// Suspend pauses the device, for example while the terminal is suspended.
func (c *Context) Suspend() error { return c.ctx.Suspend() }

// Resume resumes a suspended device.
func (c *Context) Resume() error { return c.ctx.Resume() }
