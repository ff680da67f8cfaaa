package audio

import (
	"bytes"
	"fmt"

	"github.com/vista-tts/vista/internal/stream"
)

// sniffPCM rejects a first chunk that is clearly not raw PCM: an encoded or
// containerized stream, or an error document returned in place of audio.
func sniffPCM(c []byte) error {
	if kind := containerKind(c); kind != "" {
		return fmt.Errorf("%w: got %s data for a pcm stream", stream.ErrDecodeRejected, kind)
	}
	return nil
}

func containerKind(c []byte) string {
	switch {
	case bytes.HasPrefix(c, []byte("ID3")):
		return "mp3"
	case isMP3Frame(c):
		return "mp3"
	case bytes.HasPrefix(c, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(c, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(c, []byte("fLaC")):
		return "flac"
	}
	trimmed := bytes.TrimLeft(c, " \t\r\n")
	switch {
	case bytes.HasPrefix(trimmed, []byte(`{"`)), bytes.HasPrefix(trimmed, []byte("[{")):
		return "json"
	case bytes.HasPrefix(trimmed, []byte("<!")), bytes.HasPrefix(trimmed, []byte("<html")):
		return "html"
	}
	return ""
}

// isMP3Frame checks for an MPEG audio frame header: 11 sync bits, a valid
// version and layer, and a bitrate and sample rate index that are not
// reserved.
func isMP3Frame(c []byte) bool {
	if len(c) < 4 || c[0] != 0xFF || c[1]&0xE0 != 0xE0 {
		return false
	}
	version := (c[1] >> 3) & 0x03
	layer := (c[1] >> 1) & 0x03
	bitrate := c[2] >> 4
	rate := (c[2] >> 2) & 0x03
	return version != 0x01 && layer != 0x00 && bitrate != 0x0F && bitrate != 0x00 && rate != 0x03
}
