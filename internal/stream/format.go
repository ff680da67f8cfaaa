package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// Codecs the backend can produce.
const (
	CodecMP3  = "mp3"
	CodecPCM  = "pcm"
	CodecULaw = "ulaw"
	CodecOpus = "opus"
)

// MediaType is the negotiated encoding of a stream, parsed from an output
// format such as "mp3_44100_128" or "pcm_22050".
type MediaType struct {
	Format     string
	Codec      string
	SampleRate int
	Bitrate    int // kbps; zero for uncompressed codecs
}

// IsPCM reports whether chunks carry raw signed 16-bit little-endian samples.
func (m MediaType) IsPCM() bool {
	return m.Codec == CodecPCM
}

// Extension returns a file extension suitable for the codec.
func (m MediaType) Extension() string {
	switch m.Codec {
	case CodecMP3:
		return ".mp3"
	case CodecPCM:
		return ".pcm"
	case CodecULaw:
		return ".ulaw"
	case CodecOpus:
		return ".opus"
	default:
		return ".bin"
	}
}

func (m MediaType) String() string {
	return m.Format
}

// ParseOutputFormat parses a backend output format string.
func ParseOutputFormat(s string) (MediaType, error) {
	parts := strings.Split(s, "_")
	if len(parts) < 2 || len(parts) > 3 {
		return MediaType{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}

	m := MediaType{Format: s, Codec: parts[0]}
	switch m.Codec {
	case CodecMP3, CodecOpus:
		if len(parts) != 3 {
			return MediaType{}, fmt.Errorf("%w: %q needs a bitrate", ErrUnsupportedFormat, s)
		}
	case CodecPCM, CodecULaw:
		if len(parts) != 2 {
			return MediaType{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
		}
	default:
		return MediaType{}, fmt.Errorf("%w: unknown codec %q", ErrUnsupportedFormat, parts[0])
	}

	rate, err := strconv.Atoi(parts[1])
	if err != nil || rate <= 0 {
		return MediaType{}, fmt.Errorf("%w: bad sample rate in %q", ErrUnsupportedFormat, s)
	}
	m.SampleRate = rate

	if len(parts) == 3 {
		br, err := strconv.Atoi(parts[2])
		if err != nil || br <= 0 {
			return MediaType{}, fmt.Errorf("%w: bad bitrate in %q", ErrUnsupportedFormat, s)
		}
		m.Bitrate = br
	}
	return m, nil
}
