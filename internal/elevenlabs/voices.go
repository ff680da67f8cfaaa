package elevenlabs

import (
	"context"
	"net/url"
	"strconv"
)

// NotAvailable fills voice fields the API leaves out.
const NotAvailable = "N/A"

// VoiceLabels are the descriptive tags attached to a voice.
type VoiceLabels struct {
	Accent      string `json:"accent" yaml:"accent" toml:"accent"`
	Gender      string `json:"gender" yaml:"gender" toml:"gender"`
	Age         string `json:"age" yaml:"age" toml:"age"`
	Descriptive string `json:"descriptive" yaml:"descriptive" toml:"descriptive"`
	UseCase     string `json:"use_case" yaml:"use_case" toml:"use_case"`
}

// Voice is one entry of the voice library.
type Voice struct {
	VoiceID     string      `json:"voice_id" yaml:"voice_id" toml:"voice_id"`
	Name        string      `json:"name" yaml:"name" toml:"name"`
	Category    string      `json:"category" yaml:"category" toml:"category"`
	PreviewURL  string      `json:"preview_url" yaml:"preview_url" toml:"preview_url"`
	Description string      `json:"description" yaml:"description" toml:"description"`
	Labels      VoiceLabels `json:"labels" yaml:"labels" toml:"labels"`
}

type voiceResponse struct {
	VoiceID     *string `json:"voice_id"`
	Name        *string `json:"name"`
	Category    *string `json:"category"`
	PreviewURL  *string `json:"preview_url"`
	Description *string `json:"description"`
	Labels      struct {
		Accent      *string `json:"accent"`
		Gender      *string `json:"gender"`
		Age         *string `json:"age"`
		Descriptive *string `json:"descriptive"`
		UseCase     *string `json:"use_case"`
	} `json:"labels"`
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return NotAvailable
	}
	return *s
}

func (v voiceResponse) voice() Voice {
	return Voice{
		VoiceID:     orNA(v.VoiceID),
		Name:        orNA(v.Name),
		Category:    orNA(v.Category),
		PreviewURL:  orNA(v.PreviewURL),
		Description: orNA(v.Description),
		Labels: VoiceLabels{
			Accent:      orNA(v.Labels.Accent),
			Gender:      orNA(v.Labels.Gender),
			Age:         orNA(v.Labels.Age),
			Descriptive: orNA(v.Labels.Descriptive),
			UseCase:     orNA(v.Labels.UseCase),
		},
	}
}

// voicesPageSize is the largest page the API serves.
const voicesPageSize = 100

// ListVoices returns the account's non-default voices, following pagination.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	var (
		voices []Voice
		token  string
	)
	for {
		q := url.Values{
			"voice_type": {"non-default"},
			"page_size":  {strconv.Itoa(voicesPageSize)},
		}
		if token != "" {
			q.Set("next_page_token", token)
		}

		var page struct {
			Voices        []voiceResponse `json:"voices"`
			HasMore       bool            `json:"has_more"`
			NextPageToken string          `json:"next_page_token"`
		}
		if err := c.getJSON(ctx, "/v2/voices", q, &page); err != nil {
			return nil, err
		}
		for _, v := range page.Voices {
			voices = append(voices, v.voice())
		}
		if !page.HasMore || page.NextPageToken == "" || page.NextPageToken == token {
			return voices, nil
		}
		token = page.NextPageToken
	}
}
