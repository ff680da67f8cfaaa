// Package config holds vista's typed configuration, loaded from viper and
// the process environment.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"

	"github.com/vista-tts/vista/internal/stream"
)

// AppName names config, data and cache directories.
const AppName = "vista"

// Config contains every vista setting.
type Config struct {
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Voice      VoiceConfig      `yaml:"voice"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Text       TextConfig       `yaml:"text"`
	Cache      CacheConfig      `yaml:"cache"`
	History    HistoryConfig    `yaml:"history"`
	Vault      VaultConfig      `yaml:"vault"`
	Relay      RelayConfig      `yaml:"relay"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ElevenLabsConfig configures the HTTP client.
type ElevenLabsConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// VoiceConfig holds the default request parameters.
type VoiceConfig struct {
	ID              string  `yaml:"id"`
	Model           string  `yaml:"model"`
	Format          string  `yaml:"format"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	Style           float64 `yaml:"style"`
	Speed           float64 `yaml:"speed"`
	SpeakerBoost    bool    `yaml:"speaker_boost"`
}

// PlaybackConfig tunes the pipeline and the speaker.
type PlaybackConfig struct {
	HighWater    int           `yaml:"high_water"`
	LowWater     int           `yaml:"low_water"`
	WarnQueued   int           `yaml:"warn_queued"`
	Volume       float64       `yaml:"volume"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// TextConfig controls input handling.
type TextConfig struct {
	MaxCharacters int  `yaml:"max_characters"`
	CodeMarker    bool `yaml:"code_marker"`
}

// CacheConfig configures the audio cache.
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Dir              string        `yaml:"dir"`
	MaxSizeMB        int           `yaml:"max_size_mb"`
	TTL              time.Duration `yaml:"ttl"`
	CompressionLevel int           `yaml:"compression_level"`
}

// HistoryConfig configures the session history.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// VaultConfig locates the credential vault.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// RelayConfig configures the NATS relay.
type RelayConfig struct {
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Embedded      bool          `yaml:"embedded"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Queue         string        `yaml:"queue"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Timeout       time.Duration `yaml:"timeout"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

// Env is read from the process environment.
type Env struct {
	APIKey          string `env:"ELEVENLABS_API_KEY"`
	VaultPassphrase string `env:"VISTA_VAULT_PASSPHRASE"`
	Debug           bool   `env:"VISTA_DEBUG" envDefault:"false"`
	ConfigHome      string `env:"VISTA_CONFIG_HOME"`
}

// ParseEnv reads Env.
func ParseEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return e, nil
}

// Default returns a Config with defaults. Paths are left empty and resolved
// by ResolvePaths.
func Default() Config {
	v := stream.DefaultVoiceSettings()
	return Config{
		ElevenLabs: ElevenLabsConfig{
			BaseURL: "https://api.elevenlabs.io",
			Timeout: 30 * time.Second,
		},
		Voice: VoiceConfig{
			ID:              "21m00Tcm4TlvDq8ikWAM",
			Model:           "eleven_flash_v2_5",
			Format:          stream.DefaultOutputFormat,
			Stability:       v.Stability,
			SimilarityBoost: v.SimilarityBoost,
			Style:           v.Style,
			Speed:           v.Speed,
			SpeakerBoost:    v.UseSpeakerBoost,
		},
		Playback: PlaybackConfig{
			WarnQueued:   256,
			Volume:       1.0,
			ReadyTimeout: 5 * time.Second,
		},
		Text: TextConfig{
			MaxCharacters: 2500,
		},
		Cache: CacheConfig{
			Enabled:          true,
			MaxSizeMB:        256,
			TTL:              7 * 24 * time.Hour,
			CompressionLevel: 3,
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: 30 * 24 * time.Hour,
		},
		Relay: RelayConfig{
			URL:           "nats://127.0.0.1:4222",
			Host:          "127.0.0.1",
			Port:          4222,
			Queue:         "vista-workers",
			MaxConcurrent: 4,
			Timeout:       2 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			PrometheusBind: ":9091",
		},
	}
}

// VoiceSettings converts the voice defaults to request settings.
func (c VoiceConfig) VoiceSettings() stream.VoiceSettings {
	return stream.VoiceSettings{
		Stability:       c.Stability,
		SimilarityBoost: c.SimilarityBoost,
		Style:           c.Style,
		Speed:           c.Speed,
		UseSpeakerBoost: c.SpeakerBoost,
	}
}

// StreamOptions converts playback settings to controller options.
func (c PlaybackConfig) StreamOptions() stream.Options {
	opts := stream.DefaultOptions()
	opts.HighWater = c.HighWater
	opts.LowWater = c.LowWater
	opts.WarnQueued = c.WarnQueued
	return opts
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ElevenLabs.Timeout < 0 {
		return fmt.Errorf("elevenlabs timeout must not be negative, got %s", c.ElevenLabs.Timeout)
	}
	if c.ElevenLabs.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative, got %d", c.ElevenLabs.RequestsPerMinute)
	}
	if err := c.Voice.VoiceSettings().Validate(); err != nil {
		return fmt.Errorf("voice: %w", err)
	}
	if _, err := stream.ParseOutputFormat(c.Voice.Format); err != nil {
		return fmt.Errorf("voice: %w", err)
	}
	if err := c.Playback.StreamOptions().Validate(); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		return fmt.Errorf("playback volume must be between 0.0 and 1.0, got %g", c.Playback.Volume)
	}
	if c.Text.MaxCharacters < 0 {
		return fmt.Errorf("text max_characters must not be negative, got %d", c.Text.MaxCharacters)
	}
	if c.Cache.Enabled && (c.Cache.MaxSizeMB < 1 || c.Cache.MaxSizeMB > 10000) {
		return fmt.Errorf("cache max_size_mb must be between 1 and 10000, got %d", c.Cache.MaxSizeMB)
	}
	if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
		return fmt.Errorf("cache compression_level must be between 0 and 22, got %d", c.Cache.CompressionLevel)
	}
	if c.Relay.MaxConcurrent < 1 {
		return fmt.Errorf("relay max_concurrent must be at least 1, got %d", c.Relay.MaxConcurrent)
	}
	if c.Relay.Port < -1 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay port out of range: %d", c.Relay.Port)
	}
	return nil
}

// ResolvePaths expands configured paths and fills in the defaults under
// the user's data and cache directories.
func (c *Config) ResolvePaths() error {
	scope := gap.NewScope(gap.User, AppName)

	resolve := func(p *string, def func() (string, error)) error {
		if *p == "" {
			d, err := def()
			if err != nil {
				return err
			}
			*p = d
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = filepath.Clean(expanded)
		return nil
	}

	if err := resolve(&c.Cache.Dir, func() (string, error) {
		dir, err := scope.CacheDir()
		return filepath.Join(dir, "audio"), err
	}); err != nil {
		return err
	}
	if err := resolve(&c.History.Path, func() (string, error) { return scope.DataPath("history.db") }); err != nil {
		return err
	}
	return resolve(&c.Vault.Path, func() (string, error) { return scope.DataPath("vault.db") })
}
