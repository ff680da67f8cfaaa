package audio

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestChunkReaderConsumedOncePerChunk(t *testing.T) {
	var consumed atomic.Int32
	r := newChunkReader(func() { consumed.Add(1) })

	r.push([]byte{1, 2, 3, 4})
	buf := make([]byte, 3)
	n, err := r.Read(buf)
	if n != 3 || err != nil {
		t.Fatalf("Read() = %d, %v, want 3, nil", n, err)
	}
	if consumed.Load() != 0 {
		t.Error("consumed fired before the chunk was drained")
	}
	n, _ = r.Read(buf)
	if n != 1 || consumed.Load() != 1 {
		t.Errorf("Read() = %d, consumed = %d, want 1, 1", n, consumed.Load())
	}
}

func TestChunkReaderCarriesOddByte(t *testing.T) {
	r := newChunkReader(nil)
	var got []byte
	buf := make([]byte, 8)

	r.push([]byte{1, 2, 3})
	n, _ := r.Read(buf)
	got = append(got, buf[:n]...)
	if n != 2 {
		t.Fatalf("first Read() = %d bytes, want 2", n)
	}

	r.push([]byte{4, 5})
	n, _ = r.Read(buf)
	got = append(got, buf[:n]...)

	if dropped := r.end(); dropped != 1 {
		t.Errorf("end() dropped %d bytes, want 1", dropped)
	}
	n, err := r.Read(buf)
	if n != 0 || err != io.EOF {
		t.Errorf("Read() after end = %d, %v, want 0, EOF", n, err)
	}

	// The trailing half sample is dropped at end of stream.
	if want := []byte{1, 2, 3, 4}; !bytes.Equal(got, want) {
		t.Errorf("read %v, want %v", got, want)
	}
}

func TestChunkReaderSingleByteChunk(t *testing.T) {
	var consumed atomic.Int32
	r := newChunkReader(func() { consumed.Add(1) })
	r.push([]byte{9})
	if consumed.Load() != 1 {
		t.Errorf("consumed = %d, want 1 for a held byte", consumed.Load())
	}
}

func TestChunkReaderReadDoesNotWaitForChunk(t *testing.T) {
	r := newChunkReader(nil)

	// The device callback shares a lock with the goroutine calling Read, so
	// an underrun must not hold it until the next chunk arrives.
	var device sync.Mutex
	device.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer device.Unlock()
		n, err := r.Read(make([]byte, 4))
		if n != 0 || err != nil {
			t.Errorf("Read() with nothing pending = %d, %v, want 0, nil", n, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Read waited for a chunk")
	}
	device.Lock()
	device.Unlock()

	r.push([]byte{1, 2})
	buf := make([]byte, 4)
	if n, err := r.Read(buf); n != 2 || err != nil {
		t.Errorf("Read() after push = %d, %v, want 2, nil", n, err)
	}
}

func TestChunkReaderEOF(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *chunkReader)
		want  []byte
	}{
		{
			name:  "end drains pending chunk first",
			setup: func(r *chunkReader) { r.push([]byte{1, 2}); r.end() },
			want:  []byte{1, 2},
		},
		{
			name:  "close discards pending chunk",
			setup: func(r *chunkReader) { r.push([]byte{1, 2}); r.close() },
		},
		{
			name:  "end with nothing pending",
			setup: func(r *chunkReader) { r.end() },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newChunkReader(nil)
			tt.setup(r)
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("read %v, want %v", got, tt.want)
			}
		})
	}
}
