package stream

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Chunk is one unit of encoded audio. A chunk is owned by whoever holds it and
// is never modified after being handed on.
type Chunk []byte

// Voice setting bounds accepted by the synthesis API.
const (
	MinSpeed = 0.7
	MaxSpeed = 1.2
)

// DefaultOutputFormat is raw 16-bit PCM, which the speaker sink plays directly.
const DefaultOutputFormat = "pcm_22050"

// VoiceSettings tunes a single synthesis request.
type VoiceSettings struct {
	Stability       float64 // 0..1
	SimilarityBoost float64 // 0..1
	Style           float64 // 0..1
	Speed           float64 // 0.7..1.2
	UseSpeakerBoost bool
}

// DefaultVoiceSettings returns the settings the API applies to new voices.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.7,
		Style:           0.0,
		Speed:           1.0,
		UseSpeakerBoost: true,
	}
}

// Validate checks that every setting is within bounds.
func (v VoiceSettings) Validate() error {
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"stability", v.Stability},
		{"similarity_boost", v.SimilarityBoost},
		{"style", v.Style},
	} {
		if f.val < 0 || f.val > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1, got %g", ErrInvalidRequest, f.name, f.val)
		}
	}
	if v.Speed < MinSpeed || v.Speed > MaxSpeed {
		return fmt.Errorf("%w: speed must be between %g and %g, got %g", ErrInvalidRequest, MinSpeed, MaxSpeed, v.Speed)
	}
	return nil
}

// SynthesisRequest describes one speech synthesis job. It is created once per
// playback attempt and passed by value; the slice and pointer fields are
// copied by the controller before the request is used.
type SynthesisRequest struct {
	VoiceID            string
	Text               string
	ModelID            string
	Seed               *uint32
	PreviousText       string
	NextText           string
	PreviousRequestIDs []string
	NextRequestIDs     []string
	OutputFormat       string
	VoiceSettings      VoiceSettings
}

// Validate reports whether the request can be sent to a backend.
func (r SynthesisRequest) Validate() error {
	if strings.TrimSpace(r.VoiceID) == "" {
		return fmt.Errorf("%w: voice id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ModelID) == "" {
		return fmt.Errorf("%w: model id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidRequest)
	}
	if _, err := ParseOutputFormat(r.Format()); err != nil {
		return err
	}
	return r.VoiceSettings.Validate()
}

// Format returns the requested output format, or DefaultOutputFormat.
func (r SynthesisRequest) Format() string {
	if r.OutputFormat == "" {
		return DefaultOutputFormat
	}
	return r.OutputFormat
}

// Clone returns a copy that shares no memory with r.
func (r SynthesisRequest) Clone() SynthesisRequest {
	c := r
	if r.Seed != nil {
		seed := *r.Seed
		c.Seed = &seed
	}
	c.PreviousRequestIDs = slices.Clone(r.PreviousRequestIDs)
	c.NextRequestIDs = slices.Clone(r.NextRequestIDs)
	return c
}

// Key returns a stable digest identifying the audio the request produces.
// Text is normalized to NFC so visually identical input maps to one key.
func (r SynthesisRequest) Key() string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(r.VoiceID)
	write(r.ModelID)
	write(r.Format())
	write(norm.NFC.String(r.Text))
	write(norm.NFC.String(r.PreviousText))
	write(norm.NFC.String(r.NextText))
	write(strings.Join(r.PreviousRequestIDs, ","))
	write(strings.Join(r.NextRequestIDs, ","))
	if r.Seed != nil {
		write(strconv.FormatUint(uint64(*r.Seed), 10))
	} else {
		write("-")
	}
	v := r.VoiceSettings
	write(fmt.Sprintf("%g|%g|%g|%g|%t", v.Stability, v.SimilarityBoost, v.Style, v.Speed, v.UseSpeakerBoost))
	return hex.EncodeToString(h.Sum(nil))
}
