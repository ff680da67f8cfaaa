package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# ElevenLabs API client
elevenlabs:
  base_url: "https://api.elevenlabs.io"
  timeout: "30s"
  # 0 disables client-side rate limiting
  requests_per_minute: 0

# Default voice and request settings
voice:
  id: "21m00Tcm4TlvDq8ikWAM"
  model: "eleven_flash_v2_5"
  # pcm_16000, pcm_22050, pcm_24000 or pcm_44100 play on the speaker;
  # other formats need --out
  format: "pcm_22050"
  stability: 0.5
  similarity_boost: 0.7
  style: 0.0
  speed: 1.0
  speaker_boost: true

# Playback pipeline
playback:
  # pause reading the network once this many chunks are queued (0 = never)
  high_water: 0
  low_water: 0
  # log a warning once per session past this queue length
  warn_queued: 256
  volume: 1.0
  ready_timeout: "5s"

# Input handling
text:
  # longer input is split at sentence boundaries
  max_characters: 2500
  # say "Code block omitted." where markdown code blocks are skipped
  code_marker: false

# Cache of synthesized audio
cache:
  enabled: true
  # dir: "~/.cache/vista/audio"
  max_size_mb: 256
  ttl: "168h"
  compression_level: 3

# Session history
history:
  enabled: true
  # path: "~/.local/share/vista/history.db"
  retention: "720h"

# Credential vault
vault:
  # path: "~/.local/share/vista/vault.db"

# NATS relay (vista relay serve, vista speak --relay)
relay:
  url: "nats://127.0.0.1:4222"
  # token: ""
  # run an in-process NATS server with relay serve
  embedded: false
  host: "127.0.0.1"
  port: 4222
  queue: "vista-workers"
  max_concurrent: 4
  timeout: "2m"

# OpenTelemetry
telemetry:
  enabled: false
  # otlp_endpoint: "localhost:4317"
  otlp_insecure: false
  prometheus_bind: ":9091"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the vista config file",
	Long:    paragraph(fmt.Sprintf("\n%s the vista config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("vista config\nvista config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Vista", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// ensureConfigFile writes the default config to configFile unless it exists.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	if configFile == "" {
		return errors.New("no configuration file path")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
