package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vista-tts/vista/internal/stream"
)

// playbackPoll is how often a finalized sink checks whether the player has
// drained.
const playbackPoll = 100 * time.Millisecond

// PCMSink plays raw PCM chunks through an Output. It holds at most one chunk
// in flight: the player pulls it through a non-blocking reader, and the sink
// signals readiness once the player has read all of it.
type PCMSink struct {
	out    Output
	media  stream.MediaType
	volume float64
	logger *log.Logger

	mu       sync.Mutex
	player   Player
	reader   *chunkReader
	inFlight bool
	sniffed  bool
	ended    bool
	released bool

	notify      chan error
	done        chan struct{}
	doneOnce    sync.Once
	stopMonitor chan struct{}
	releaseOnce sync.Once
}

// SinkOption configures a PCMSink.
type SinkOption func(*PCMSink)

// WithVolume sets the playback volume, 0 to 1.
func WithVolume(v float64) SinkOption {
	return func(s *PCMSink) {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		s.volume = v
	}
}

// WithLogger sets the sink's logger.
func WithLogger(l *log.Logger) SinkOption {
	return func(s *PCMSink) { s.logger = l }
}

// NewPCMSink returns a sink playing media through out. The media type must be
// PCM at the output's sample rate.
func NewPCMSink(out Output, media stream.MediaType, opts ...SinkOption) (*PCMSink, error) {
	if !media.IsPCM() {
		return nil, fmt.Errorf("%w: speaker playback needs a pcm format, got %s", stream.ErrUnsupportedFormat, media)
	}
	if media.SampleRate != out.SampleRate() {
		return nil, fmt.Errorf("%w: stream is %d Hz but the device runs at %d Hz",
			stream.ErrUnsupportedFormat, media.SampleRate, out.SampleRate())
	}

	s := &PCMSink{
		out:         out,
		media:       media,
		volume:      1,
		logger:      log.Default().WithPrefix("audio"),
		notify:      make(chan error, 1),
		done:        make(chan struct{}),
		stopMonitor: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reader = newChunkReader(s.consumed)
	return s, nil
}

// Ready implements stream.Sink.
func (s *PCMSink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.inFlight && !s.ended && !s.released
}

// Accept implements stream.Sink.
func (s *PCMSink) Accept(c stream.Chunk) error {
	s.mu.Lock()
	switch {
	case s.released:
		s.mu.Unlock()
		return stream.ErrSessionClosed
	case s.ended:
		s.mu.Unlock()
		return fmt.Errorf("audio: accept after end of stream")
	case s.inFlight:
		s.mu.Unlock()
		return fmt.Errorf("audio: accept while an append is in flight")
	}

	if !s.sniffed {
		if err := sniffPCM(c); err != nil {
			s.mu.Unlock()
			return err
		}
		s.sniffed = true
	}

	s.inFlight = true
	if s.player == nil {
		s.player = s.out.NewPlayer(s.reader)
		s.player.SetVolume(s.volume)
		s.player.Play()
		s.logger.Debug("player started", "format", s.media, "volume", s.volume)
	}
	s.mu.Unlock()

	// The reader may call consumed synchronously, so push without the lock.
	s.reader.push(c)
	return nil
}

func (s *PCMSink) consumed() {
	s.mu.Lock()
	if !s.inFlight || s.released {
		s.mu.Unlock()
		return
	}
	s.inFlight = false
	s.mu.Unlock()

	select {
	case s.notify <- nil:
	default:
		s.logger.Warn("dropping readiness signal, previous one not consumed")
	}
}

// Notify implements stream.Sink.
func (s *PCMSink) Notify() <-chan error { return s.notify }

// EndOfStream implements stream.Sink.
func (s *PCMSink) EndOfStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		return stream.ErrInvalidFinalizeState
	}
	if s.released {
		return stream.ErrSessionClosed
	}
	if s.ended {
		return nil
	}
	s.ended = true
	if dropped := s.reader.end(); dropped > 0 {
		s.logger.Warn("dropping trailing partial sample", "bytes", dropped)
	}

	if s.player == nil {
		s.closeDone()
		return nil
	}
	go s.monitor(s.player)
	return nil
}

// monitor waits for the player to drain, polling like a playback monitor
// since oto reports completion only through IsPlaying.
func (s *PCMSink) monitor(p Player) {
	ticker := time.NewTicker(playbackPoll)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopMonitor:
			return
		case <-ticker.C:
			if !p.IsPlaying() {
				s.logger.Debug("playback drained", "bytes", s.reader.bytesRead())
				s.closeDone()
				return
			}
		}
	}
}

func (s *PCMSink) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed when every accepted byte has been played, or on Release.
func (s *PCMSink) Done() <-chan struct{} { return s.done }

// Played returns the number of bytes the player has read.
func (s *PCMSink) Played() int64 { return s.reader.bytesRead() }

// Release implements stream.Sink. The reader is closed before the player so
// a player blocked in Read can shut down.
func (s *PCMSink) Release() error {
	var err error
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		s.released = true
		s.inFlight = false
		p := s.player
		s.player = nil
		s.mu.Unlock()

		s.reader.close()
		close(s.stopMonitor)
		if p != nil {
			if cerr := p.Close(); cerr != nil {
				err = fmt.Errorf("closing player: %w", cerr)
			}
		}
		s.closeDone()
	})
	return err
}

// SpeakerFactory opens a PCMSink on out for each session.
func SpeakerFactory(out Output, opts ...SinkOption) stream.SinkFactory {
	return func(media stream.MediaType) (stream.Sink, error) {
		return NewPCMSink(out, media, opts...)
	}
}
