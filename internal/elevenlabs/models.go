package elevenlabs

import "context"

// Language is a language a model can speak.
type Language struct {
	LanguageID string `json:"language_id" yaml:"language_id" toml:"language_id"`
	Name       string `json:"name" yaml:"name" toml:"name"`
}

// Model is a synthesis model.
type Model struct {
	ModelID           string     `json:"model_id" yaml:"model_id" toml:"model_id"`
	Name              string     `json:"name" yaml:"name" toml:"name"`
	Description       string     `json:"description" yaml:"description" toml:"description"`
	CanDoTextToSpeech bool       `json:"can_do_text_to_speech" yaml:"can_do_text_to_speech" toml:"can_do_text_to_speech"`
	MaxCharacters     int        `json:"maximum_text_length_per_request" yaml:"max_characters" toml:"max_characters"`
	Languages         []Language `json:"languages" yaml:"languages" toml:"languages"`
}

// ListModels returns the models available to the account.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var models []Model
	if err := c.getJSON(ctx, "/v1/models", nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}
