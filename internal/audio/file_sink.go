package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/vista-tts/vista/internal/stream"
)

// FileSinkOptions configures a FileSink.
type FileSinkOptions struct {
	// Dir is where the file is written. Empty uses the system temp dir.
	Dir string
	// Name is the file name without extension. Empty picks a unique name.
	Name string
	// Keep leaves a finalized file in place on Release. Files of aborted
	// streams are always removed.
	Keep bool
}

// FileSink writes a stream to disk. Its locator is the file path, which is
// revoked (the file removed) on Release unless the stream was finalized with
// Keep set.
type FileSink struct {
	path   string
	keep   bool
	logger *log.Logger

	mu       sync.Mutex
	f        *os.File
	written  int64
	ended    bool
	released bool
	notify   chan error
	once     sync.Once
}

// NewFileSink creates the output file for media.
func NewFileSink(media stream.MediaType, opts FileSinkOptions) (*FileSink, error) {
	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	var (
		f   *os.File
		err error
	)
	if opts.Name == "" {
		f, err = os.CreateTemp(dir, "vista-*"+media.Extension())
	} else {
		f, err = os.Create(filepath.Join(dir, opts.Name+media.Extension()))
	}
	if err != nil {
		return nil, fmt.Errorf("creating audio file: %w", err)
	}

	return &FileSink{
		path:   f.Name(),
		keep:   opts.Keep,
		logger: log.Default().WithPrefix("audio"),
		f:      f,
		notify: make(chan error, 1),
	}, nil
}

// Locator returns the path of the file being written.
func (s *FileSink) Locator() string { return s.path }

// Written returns the number of bytes written.
func (s *FileSink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Ready implements stream.Sink. Writes are synchronous, so the sink is ready
// whenever it is open.
func (s *FileSink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended && !s.released
}

// Accept implements stream.Sink.
func (s *FileSink) Accept(c stream.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return stream.ErrSessionClosed
	}
	if s.ended {
		return fmt.Errorf("audio: accept after end of stream")
	}
	n, err := s.f.Write(c)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}

	select {
	case s.notify <- nil:
	default:
	}
	return nil
}

// Notify implements stream.Sink.
func (s *FileSink) Notify() <-chan error { return s.notify }

// EndOfStream implements stream.Sink. It flushes and closes the file.
func (s *FileSink) EndOfStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return stream.ErrSessionClosed
	}
	if s.ended {
		return nil
	}
	s.ended = true
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("syncing %s: %w", s.path, err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", s.path, err)
	}
	s.logger.Debug("audio file written", "path", s.path, "bytes", s.written)
	return nil
}

// Release implements stream.Sink.
func (s *FileSink) Release() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.released = true

		if !s.ended {
			s.f.Close()
		}
		if s.keep && s.ended {
			return
		}
		if rerr := os.Remove(s.path); rerr != nil && !os.IsNotExist(rerr) {
			err = fmt.Errorf("removing %s: %w", s.path, rerr)
		}
	})
	return err
}

// FileFactory opens a FileSink for each session.
func FileFactory(opts FileSinkOptions) stream.SinkFactory {
	return func(media stream.MediaType) (stream.Sink, error) {
		return NewFileSink(media, opts)
	}
}
