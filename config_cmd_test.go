package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/vista-tts/vista/internal/config"
)

func TestEnsureConfigFileWritesLoadableDefault(t *testing.T) {
	dir := t.TempDir()
	prev := configFile
	t.Cleanup(func() { configFile = prev })
	configFile = filepath.Join(dir, "nested", "vista.yml")

	if err := ensureConfigFile(); err != nil {
		t.Fatalf("ensureConfigFile() error = %v", err)
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("default config does not parse: %v", err)
	}
	v.Set("cache.dir", filepath.Join(dir, "audio"))
	v.Set("history.path", filepath.Join(dir, "history.db"))
	v.Set("vault.path", filepath.Join(dir, "vault.db"))

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		t.Fatalf("LoadFromViper(default) error = %v", err)
	}
	want := config.Default()
	if cfg.Voice != want.Voice {
		t.Errorf("voice = %+v, want %+v", cfg.Voice, want.Voice)
	}
	if cfg.Playback != want.Playback {
		t.Errorf("playback = %+v, want %+v", cfg.Playback, want.Playback)
	}
	if cfg.Cache.TTL != want.Cache.TTL || cfg.History.Retention != want.History.Retention {
		t.Errorf("durations = %s/%s, want %s/%s", cfg.Cache.TTL, cfg.History.Retention, want.Cache.TTL, want.History.Retention)
	}
	if cfg.Relay != want.Relay {
		t.Errorf("relay = %+v, want %+v", cfg.Relay, want.Relay)
	}
}

func TestEnsureConfigFileKeepsExisting(t *testing.T) {
	prev := configFile
	t.Cleanup(func() { configFile = prev })
	configFile = filepath.Join(t.TempDir(), "vista.yaml")
	if err := os.WriteFile(configFile, []byte("voice:\n  id: mine\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := ensureConfigFile(); err != nil {
		t.Fatalf("ensureConfigFile() error = %v", err)
	}
	b, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "voice:\n  id: mine\n" {
		t.Errorf("existing config overwritten: %q", b)
	}
}

func TestEnsureConfigFileRejectsExtension(t *testing.T) {
	prev := configFile
	t.Cleanup(func() { configFile = prev })
	configFile = filepath.Join(t.TempDir(), "vista.json")

	if err := ensureConfigFile(); err == nil {
		t.Error("ensureConfigFile() = nil, want unsupported type error")
	}
}

type fakeLimiter struct{ rpm []int }

func (f *fakeLimiter) SetRequestsPerMinute(rpm int) { f.rpm = append(f.rpm, rpm) }

func TestApplyConfigChange(t *testing.T) {
	dir := t.TempDir()
	newViper := func() *viper.Viper {
		v := viper.New()
		v.Set("cache.dir", dir)
		v.Set("history.path", filepath.Join(dir, "h.db"))
		v.Set("vault.path", filepath.Join(dir, "v.db"))
		return v
	}
	logger := log.New(io.Discard)

	limiter := &fakeLimiter{}
	v := newViper()
	v.Set("elevenlabs.requests_per_minute", 30)
	applyConfigChange(v, limiter, logger)

	invalid := newViper()
	invalid.Set("voice.speed", 5.0)
	applyConfigChange(invalid, limiter, logger)

	if len(limiter.rpm) != 1 || limiter.rpm[0] != 30 {
		t.Errorf("rate changes = %v, want [30]", limiter.rpm)
	}
}
