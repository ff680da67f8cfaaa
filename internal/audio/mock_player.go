package audio

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// underrunPoll is how long a mock player waits after an empty read.
const underrunPoll = time.Millisecond

// MockOutput simulates an audio device. Each player drains its reader at
// BytesPerSecond (zero means as fast as possible) and records what it read.
type MockOutput struct {
	Rate           int
	Channels       int
	BytesPerSecond int

	mu      sync.Mutex
	players []*MockPlayer

	PlayersCreated atomic.Int64
	PlayersClosed  atomic.Int64
}

// NewMockOutput returns a mock device at the given sample rate that plays in
// real time.
func NewMockOutput(sampleRate int) *MockOutput {
	return &MockOutput{
		Rate:           sampleRate,
		Channels:       DefaultChannel,
		BytesPerSecond: sampleRate * DefaultChannel * BytesPerSample,
	}
}

// NewPlayer implements Output.
func (m *MockOutput) NewPlayer(r io.Reader) Player {
	p := &MockPlayer{
		output: m,
		reader: r,
		volume: 1,
		stop:   make(chan struct{}),
	}
	m.mu.Lock()
	m.players = append(m.players, p)
	m.mu.Unlock()
	m.PlayersCreated.Add(1)
	return p
}

// SampleRate implements Output.
func (m *MockOutput) SampleRate() int { return m.Rate }

// ChannelCount implements Output.
func (m *MockOutput) ChannelCount() int {
	if m.Channels == 0 {
		return DefaultChannel
	}
	return m.Channels
}

// Players returns every player created so far.
func (m *MockOutput) Players() []*MockPlayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockPlayer(nil), m.players...)
}

// MockPlayer is a Player created by MockOutput.
type MockPlayer struct {
	output *MockOutput
	reader io.Reader

	mu      sync.Mutex
	data    []byte
	volume  float64
	playing bool
	started bool
	closed  bool
	err     error

	stop     chan struct{}
	finished chan struct{}
	once     sync.Once
}

// Play implements Player.
func (p *MockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.playing = true
	p.finished = make(chan struct{})
	go p.drain(p.finished)
}

func (p *MockPlayer) drain(finished chan struct{}) {
	defer close(finished)
	buf := make([]byte, 512)
	for {
		n, err := p.reader.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.data = append(p.data, buf[:n]...)
			p.mu.Unlock()
			if bps := p.output.BytesPerSecond; bps > 0 {
				select {
				case <-time.After(time.Duration(n) * time.Second / time.Duration(bps)):
				case <-p.stop:
					return
				}
			}
		}
		if err != nil {
			p.mu.Lock()
			p.playing = false
			if !errors.Is(err, io.EOF) {
				p.err = err
			}
			p.mu.Unlock()
			return
		}
		var wait time.Duration
		if n == 0 {
			// Nothing pending yet; retry like the device loop does.
			wait = underrunPoll
		}
		select {
		case <-p.stop:
			return
		case <-time.After(wait):
		}
	}
}

// IsPlaying implements Player.
func (p *MockPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SetVolume implements Player.
func (p *MockPlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

// Volume returns the last volume set.
func (p *MockPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Close implements Player. It waits for the drain goroutine to stop.
func (p *MockPlayer) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.playing = false
		finished := p.finished
		p.mu.Unlock()

		close(p.stop)
		if finished != nil {
			<-finished
		}
		p.output.PlayersClosed.Add(1)
	})
	return nil
}

// Data returns every byte the player has read.
func (p *MockPlayer) Data() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.data...)
}

// Err returns a non-EOF read error, if any.
func (p *MockPlayer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
