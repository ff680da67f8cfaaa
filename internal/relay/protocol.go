// Package relay carries synthesis streams over NATS: a Worker next to the
// speech API serves requests, and a Backend on the playback side consumes
// the ordered audio packets it publishes.
package relay

import (
	"errors"

	"github.com/vista-tts/vista/internal/stream"
)

// Subjects.
const (
	SubjectRequest     = "vista.tts.request"
	subjectAudioPrefix = "vista.tts.audio."
	DefaultQueue       = "vista-workers"
)

// ErrBusy is returned by a worker at its concurrency limit.
var ErrBusy = errors.New("relay: worker busy")

// AudioSubject is the subject a worker publishes a session's packets on.
func AudioSubject(sessionID string) string {
	return subjectAudioPrefix + sessionID
}

// RequestMessage is published on SubjectRequest.
type RequestMessage struct {
	SessionID          string        `json:"session_id"`
	VoiceID            string        `json:"voice_id"`
	ModelID            string        `json:"model_id"`
	Text               string        `json:"text"`
	Seed               *uint32       `json:"seed,omitempty"`
	PreviousText       string        `json:"previous_text,omitempty"`
	NextText           string        `json:"next_text,omitempty"`
	PreviousRequestIDs []string      `json:"previous_request_ids,omitempty"`
	NextRequestIDs     []string      `json:"next_request_ids,omitempty"`
	OutputFormat       string        `json:"output_format"`
	Settings           voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func newRequestMessage(sessionID string, req stream.SynthesisRequest) RequestMessage {
	v := req.VoiceSettings
	return RequestMessage{
		SessionID:          sessionID,
		VoiceID:            req.VoiceID,
		ModelID:            req.ModelID,
		Text:               req.Text,
		Seed:               req.Seed,
		PreviousText:       req.PreviousText,
		NextText:           req.NextText,
		PreviousRequestIDs: req.PreviousRequestIDs,
		NextRequestIDs:     req.NextRequestIDs,
		OutputFormat:       req.Format(),
		Settings: voiceSettings{
			Stability:       v.Stability,
			SimilarityBoost: v.SimilarityBoost,
			Style:           v.Style,
			Speed:           v.Speed,
			UseSpeakerBoost: v.UseSpeakerBoost,
		},
	}
}

// SynthesisRequest converts the message back to a request.
func (m RequestMessage) SynthesisRequest() stream.SynthesisRequest {
	return stream.SynthesisRequest{
		VoiceID:            m.VoiceID,
		ModelID:            m.ModelID,
		Text:               m.Text,
		Seed:               m.Seed,
		PreviousText:       m.PreviousText,
		NextText:           m.NextText,
		PreviousRequestIDs: m.PreviousRequestIDs,
		NextRequestIDs:     m.NextRequestIDs,
		OutputFormat:       m.OutputFormat,
		VoiceSettings: stream.VoiceSettings{
			Stability:       m.Settings.Stability,
			SimilarityBoost: m.Settings.SimilarityBoost,
			Style:           m.Settings.Style,
			Speed:           m.Settings.Speed,
			UseSpeakerBoost: m.Settings.UseSpeakerBoost,
		},
	}
}

// reply answers a request: an empty Error means the worker accepted it.
type reply struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

// AudioPacket is one message on a session's audio subject. Sequence starts
// at 0 and increases by one per packet, including the final packet. A final
// packet may carry data; a packet with Error ends the stream as failed.
type AudioPacket struct {
	SessionID string `json:"session_id"`
	Sequence  int    `json:"sequence"`
	Data      []byte `json:"data,omitempty"`
	Final     bool   `json:"final,omitempty"`
	Error     string `json:"error,omitempty"`
}
