package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers every default with v so that `vista config` and
// environment lookups see the full key set.
func SetDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"elevenlabs.base_url":            d.ElevenLabs.BaseURL,
		"elevenlabs.timeout":             d.ElevenLabs.Timeout,
		"elevenlabs.requests_per_minute": d.ElevenLabs.RequestsPerMinute,
		"voice.id":                       d.Voice.ID,
		"voice.model":                    d.Voice.Model,
		"voice.format":                   d.Voice.Format,
		"voice.stability":                d.Voice.Stability,
		"voice.similarity_boost":         d.Voice.SimilarityBoost,
		"voice.style":                    d.Voice.Style,
		"voice.speed":                    d.Voice.Speed,
		"voice.speaker_boost":            d.Voice.SpeakerBoost,
		"playback.high_water":            d.Playback.HighWater,
		"playback.low_water":             d.Playback.LowWater,
		"playback.warn_queued":           d.Playback.WarnQueued,
		"playback.volume":                d.Playback.Volume,
		"playback.ready_timeout":         d.Playback.ReadyTimeout,
		"text.max_characters":            d.Text.MaxCharacters,
		"text.code_marker":               d.Text.CodeMarker,
		"cache.enabled":                  d.Cache.Enabled,
		"cache.max_size_mb":              d.Cache.MaxSizeMB,
		"cache.ttl":                      d.Cache.TTL,
		"cache.compression_level":        d.Cache.CompressionLevel,
		"history.enabled":                d.History.Enabled,
		"history.retention":              d.History.Retention,
		"relay.url":                      d.Relay.URL,
		"relay.embedded":                 d.Relay.Embedded,
		"relay.host":                     d.Relay.Host,
		"relay.port":                     d.Relay.Port,
		"relay.queue":                    d.Relay.Queue,
		"relay.max_concurrent":           d.Relay.MaxConcurrent,
		"relay.timeout":                  d.Relay.Timeout,
		"telemetry.enabled":              d.Telemetry.Enabled,
		"telemetry.otlp_insecure":        d.Telemetry.OTLPInsecure,
		"telemetry.prometheus_bind":      d.Telemetry.PrometheusBind,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// LoadFromViper builds a Config from v, starting from Default and
// overlaying every key that is set. Paths are resolved and the result is
// validated.
func LoadFromViper(v *viper.Viper) (Config, error) {
	cfg := Default()
	l := loader{v: v}

	l.str("elevenlabs.base_url", &cfg.ElevenLabs.BaseURL)
	l.duration("elevenlabs.timeout", &cfg.ElevenLabs.Timeout)
	l.integer("elevenlabs.requests_per_minute", &cfg.ElevenLabs.RequestsPerMinute)

	l.str("voice.id", &cfg.Voice.ID)
	l.str("voice.model", &cfg.Voice.Model)
	l.str("voice.format", &cfg.Voice.Format)
	l.float("voice.stability", &cfg.Voice.Stability)
	l.float("voice.similarity_boost", &cfg.Voice.SimilarityBoost)
	l.float("voice.style", &cfg.Voice.Style)
	l.float("voice.speed", &cfg.Voice.Speed)
	l.boolean("voice.speaker_boost", &cfg.Voice.SpeakerBoost)

	l.integer("playback.high_water", &cfg.Playback.HighWater)
	l.integer("playback.low_water", &cfg.Playback.LowWater)
	l.integer("playback.warn_queued", &cfg.Playback.WarnQueued)
	l.float("playback.volume", &cfg.Playback.Volume)
	l.duration("playback.ready_timeout", &cfg.Playback.ReadyTimeout)

	l.integer("text.max_characters", &cfg.Text.MaxCharacters)
	l.boolean("text.code_marker", &cfg.Text.CodeMarker)

	l.boolean("cache.enabled", &cfg.Cache.Enabled)
	l.str("cache.dir", &cfg.Cache.Dir)
	l.integer("cache.max_size_mb", &cfg.Cache.MaxSizeMB)
	l.duration("cache.ttl", &cfg.Cache.TTL)
	l.integer("cache.compression_level", &cfg.Cache.CompressionLevel)

	l.boolean("history.enabled", &cfg.History.Enabled)
	l.str("history.path", &cfg.History.Path)
	l.duration("history.retention", &cfg.History.Retention)

	l.str("vault.path", &cfg.Vault.Path)

	l.str("relay.url", &cfg.Relay.URL)
	l.str("relay.token", &cfg.Relay.Token)
	l.boolean("relay.embedded", &cfg.Relay.Embedded)
	l.str("relay.host", &cfg.Relay.Host)
	l.integer("relay.port", &cfg.Relay.Port)
	l.str("relay.queue", &cfg.Relay.Queue)
	l.integer("relay.max_concurrent", &cfg.Relay.MaxConcurrent)
	l.duration("relay.timeout", &cfg.Relay.Timeout)

	l.boolean("telemetry.enabled", &cfg.Telemetry.Enabled)
	l.str("telemetry.otlp_endpoint", &cfg.Telemetry.OTLPEndpoint)
	l.boolean("telemetry.otlp_insecure", &cfg.Telemetry.OTLPInsecure)
	l.str("telemetry.prometheus_bind", &cfg.Telemetry.PrometheusBind)

	if l.err != nil {
		return cfg, l.err
	}
	if err := cfg.ResolvePaths(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type loader struct {
	v   *viper.Viper
	err error
}

func (l *loader) str(key string, dst *string) {
	if l.v.IsSet(key) {
		*dst = l.v.GetString(key)
	}
}

func (l *loader) integer(key string, dst *int) {
	if l.v.IsSet(key) {
		*dst = l.v.GetInt(key)
	}
}

func (l *loader) float(key string, dst *float64) {
	if l.v.IsSet(key) {
		*dst = l.v.GetFloat64(key)
	}
}

func (l *loader) boolean(key string, dst *bool) {
	if l.v.IsSet(key) {
		*dst = l.v.GetBool(key)
	}
}

// duration accepts Go duration strings ("90s", "168h") or plain seconds.
func (l *loader) duration(key string, dst *time.Duration) {
	if !l.v.IsSet(key) || l.err != nil {
		return
	}
	switch raw := l.v.Get(key).(type) {
	case time.Duration:
		*dst = raw
	case int, int64, float64:
		*dst = time.Duration(l.v.GetFloat64(key) * float64(time.Second))
	default:
		d, err := time.ParseDuration(l.v.GetString(key))
		if err != nil {
			l.err = fmt.Errorf("invalid duration for %s: %w", key, err)
			return
		}
		*dst = d
	}
}
