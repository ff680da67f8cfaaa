package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vista-tts/vista/internal/stream"
)

func TestFileSinkWritesAndKeeps(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(mediaType(t, "mp3_44100_128"), FileSinkOptions{Dir: dir, Name: "hello", Keep: true})
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	want := filepath.Join(dir, "hello.mp3")
	if sink.Locator() != want {
		t.Errorf("Locator() = %q, want %q", sink.Locator(), want)
	}

	for _, c := range []stream.Chunk{[]byte("ID3"), []byte("abc")} {
		if err := sink.Accept(c); err != nil {
			t.Fatalf("Accept() error = %v", err)
		}
		if err := <-sink.Notify(); err != nil {
			t.Fatalf("notify error = %v", err)
		}
	}
	if err := sink.EndOfStream(); err != nil {
		t.Fatalf("EndOfStream() error = %v", err)
	}
	if err := sink.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "ID3abc" {
		t.Errorf("file contents = %q, want %q", data, "ID3abc")
	}
}

func TestFileSinkRevokesOnRelease(t *testing.T) {
	tests := []struct {
		name     string
		keep     bool
		finalize bool
	}{
		{"temporary", false, true},
		{"aborted", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewFileSink(mediaType(t, "pcm_22050"), FileSinkOptions{Dir: t.TempDir(), Keep: tt.keep})
			if err != nil {
				t.Fatalf("NewFileSink() error = %v", err)
			}
			if err := sink.Accept([]byte{1, 2}); err != nil {
				t.Fatalf("Accept() error = %v", err)
			}
			if tt.finalize {
				if err := sink.EndOfStream(); err != nil {
					t.Fatalf("EndOfStream() error = %v", err)
				}
			}

			path := sink.Locator()
			if err := sink.Release(); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			if err := sink.Release(); err != nil {
				t.Fatalf("second Release() error = %v", err)
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Errorf("file %s should be removed, stat error = %v", path, err)
			}
		})
	}
}

func TestSinksWithController(t *testing.T) {
	dir := t.TempDir()
	chunks := []stream.Chunk{[]byte("one "), []byte("two "), []byte("three")}
	backend := stream.BackendFunc(func(ctx context.Context, _ stream.SynthesisRequest) (stream.Source, error) {
		src := stream.NewChanSource(0, nil)
		go func() {
			for _, c := range chunks {
				if !src.Send(ctx, c) {
					return
				}
			}
			src.Finish(nil)
		}()
		return src, nil
	})

	c, err := stream.NewController(backend, FileFactory(FileSinkOptions{Dir: dir, Name: "out", Keep: true}), stream.DefaultOptions())
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	defer c.Close()

	req := stream.SynthesisRequest{
		VoiceID:       "voice",
		ModelID:       "model",
		Text:          "one two three",
		OutputFormat:  "mp3_44100_128",
		VoiceSettings: stream.DefaultVoiceSettings(),
	}
	s, err := c.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out.mp3"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "one two three" {
		t.Errorf("file contents = %q", data)
	}
}
