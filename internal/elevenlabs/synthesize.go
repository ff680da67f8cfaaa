package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vista-tts/vista/internal/stream"
)

type voiceSettingsBody struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type synthesisBody struct {
	Text               string            `json:"text"`
	ModelID            string            `json:"model_id"`
	VoiceSettings      voiceSettingsBody `json:"voice_settings"`
	Seed               *uint32           `json:"seed,omitempty"`
	PreviousText       string            `json:"previous_text,omitempty"`
	NextText           string            `json:"next_text,omitempty"`
	PreviousRequestIDs []string          `json:"previous_request_ids,omitempty"`
	NextRequestIDs     []string          `json:"next_request_ids,omitempty"`
}

func newSynthesisBody(req stream.SynthesisRequest) synthesisBody {
	v := req.VoiceSettings
	return synthesisBody{
		Text:    req.Text,
		ModelID: req.ModelID,
		VoiceSettings: voiceSettingsBody{
			Stability:       v.Stability,
			SimilarityBoost: v.SimilarityBoost,
			Style:           v.Style,
			Speed:           v.Speed,
			UseSpeakerBoost: v.UseSpeakerBoost,
		},
		Seed:               req.Seed,
		PreviousText:       req.PreviousText,
		NextText:           req.NextText,
		PreviousRequestIDs: req.PreviousRequestIDs,
		NextRequestIDs:     req.NextRequestIDs,
	}
}

// Stream is the Source returned by Synthesize. It carries the response
// metadata the API sends ahead of the audio.
type Stream struct {
	*stream.ChanSource
	requestID     string
	characterCost int
}

// RequestID returns the API's id for the request, usable as a previous or
// next request id for continuity.
func (s *Stream) RequestID() string { return s.requestID }

// CharacterCost returns the characters billed for the request, if reported.
func (s *Stream) CharacterCost() int { return s.characterCost }

// Synthesize starts a streaming synthesis call. It returns once the response
// headers have arrived; audio is read in the background and delivered on the
// returned Stream. Failures to start the call wrap stream.ErrBackendUnavailable.
func (c *Client) Synthesize(ctx context.Context, req stream.SynthesisRequest) (stream.Source, error) {
	s, err := c.synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stream.ErrBackendUnavailable, err)
	}
	return s, nil
}

func (c *Client) synthesize(ctx context.Context, req stream.SynthesisRequest) (*Stream, error) {
	body, err := json.Marshal(newSynthesisBody(req))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	path := "/v1/text-to-speech/" + url.PathEscape(req.VoiceID) + "/stream"
	httpReq, err := c.newRequest(ctx, http.MethodPost, path, url.Values{"output_format": {req.Format()}}, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}

	c.logger.Info("Starting synthesis stream", "voice", req.VoiceID, "model", req.ModelID, "format", req.Format(), "characters", len([]rune(req.Text)))
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := readAPIError(resp)
		resp.Body.Close()
		cancel()
		c.logger.Error("API error", "status", resp.StatusCode, "err", apiErr)
		return nil, apiErr
	}

	s := &Stream{
		ChanSource: stream.NewChanSource(0, cancel),
		requestID:  resp.Header.Get("request-id"),
	}
	if cost, err := strconv.Atoi(resp.Header.Get("character-cost")); err == nil {
		s.characterCost = cost
	}
	c.logger.Debug("stream opened", "request_id", s.requestID, "ttfb", time.Since(start))

	go c.pump(ctx, resp.Body, s.ChanSource)
	return s, nil
}

// pump reads the response body into fresh chunks until EOF or failure.
func (c *Client) pump(ctx context.Context, body io.ReadCloser, src *stream.ChanSource) {
	defer body.Close()

	var (
		chunks int
		total  int64
	)
	for {
		buf := make([]byte, c.cfg.ReadSize)
		n, err := body.Read(buf)
		if n > 0 {
			chunks++
			total += int64(n)
			if chunks%10 == 0 {
				c.logger.Debug("Sent chunks", "chunks", chunks, "bytes", total)
			}
			if !src.Send(ctx, stream.Chunk(buf[:n])) {
				c.logger.Debug("consumer stopped reading", "chunks", chunks, "bytes", total)
				src.Finish(stream.ErrAborted)
				return
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			c.logger.Info("Stream complete", "chunks", chunks, "bytes", total)
			src.Finish(nil)
			return
		case err != nil:
			c.logger.Error("Failed to read chunk", "err", err, "chunks", chunks, "bytes", total)
			src.Finish(err)
			return
		}
	}
}
