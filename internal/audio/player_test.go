package audio

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/vista-tts/vista/internal/stream"
)

func TestNewContextValidatesOptions(t *testing.T) {
	if _, err := NewContext(ContextOptions{SampleRate: 0}); err == nil {
		t.Error("NewContext() with zero sample rate should fail")
	}
}

func TestMockPlayerDrainsReader(t *testing.T) {
	out := NewMockOutput(22050)
	out.BytesPerSecond = 0
	p := out.NewPlayer(bytes.NewReader(make([]byte, 2048)))
	p.Play()

	deadline := time.Now().Add(time.Second)
	for p.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.IsPlaying() {
		t.Fatal("player still playing after its reader hit EOF")
	}
	mp := p.(*MockPlayer)
	if len(mp.Data()) != 2048 {
		t.Errorf("read %d bytes, want 2048", len(mp.Data()))
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestMockPlayerRealTime(t *testing.T) {
	out := NewMockOutput(8000) // 16000 bytes per second
	r, w := io.Pipe()
	p := out.NewPlayer(r)
	p.Play()

	go func() {
		w.Write(make([]byte, 1600))
		w.Close()
	}()

	start := time.Now()
	for p.IsPlaying() && time.Since(start) < time.Second {
		time.Sleep(5 * time.Millisecond)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("100ms of audio played in %v", elapsed)
	}
	p.Close()
}

func TestSpeakerSession(t *testing.T) {
	out := NewMockOutput(22050)
	out.BytesPerSecond = 0

	input := [][]byte{make([]byte, 300), bytes.Repeat([]byte{1, 0}, 200), make([]byte, 77)}
	backend := stream.BackendFunc(func(ctx context.Context, _ stream.SynthesisRequest) (stream.Source, error) {
		src := stream.NewChanSource(1, nil)
		go func() {
			for _, c := range input {
				if !src.Send(ctx, c) {
					return
				}
			}
			src.Finish(nil)
		}()
		return src, nil
	})

	c, err := stream.NewController(backend, SpeakerFactory(out), stream.DefaultOptions())
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	defer c.Close()

	req := stream.SynthesisRequest{
		VoiceID:       "voice",
		ModelID:       "model",
		Text:          "hi",
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

	want := bytes.Join(input, nil)
	players := out.Players()
	if len(players) != 1 {
		t.Fatalf("players = %d, want 1", len(players))
	}
	// 777 bytes in; the final odd byte is not a whole sample.
	if got := players[0].Data(); !bytes.Equal(got, want[:776]) {
		t.Errorf("played %d bytes, want 776", len(got))
	}
	if out.PlayersClosed.Load() != 1 {
		t.Errorf("players closed = %d, want 1", out.PlayersClosed.Load())
	}
}
