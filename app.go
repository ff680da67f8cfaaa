package main

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/vista-tts/vista/internal/config"
	"github.com/vista-tts/vista/internal/elevenlabs"
	"github.com/vista-tts/vista/internal/telemetry"
	"github.com/vista-tts/vista/internal/vault"
)

// app holds what most commands need: the loaded configuration, the
// process environment and the credential vault.
type app struct {
	cfg   config.Config
	env   config.Env
	vault *vault.Lazy
}

func newApp() (*app, error) {
	cfg, err := config.LoadFromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	e, err := config.ParseEnv()
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:   cfg,
		env:   e,
		vault: vault.NewLazy(cfg.Vault.Path, vaultPassphrase(e)),
	}, nil
}

func (a *app) Close() error {
	return a.vault.Close()
}

// vaultPassphrase returns VISTA_VAULT_PASSPHRASE, or a passphrase derived
// from the user and host names.
func vaultPassphrase(e config.Env) func() []byte {
	return func() []byte {
		if e.VaultPassphrase != "" {
			return []byte(e.VaultPassphrase)
		}
		name := "vista"
		if u, err := user.Current(); err == nil {
			name = u.Username
		}
		host, _ := os.Hostname()
		return []byte("vista:" + name + "@" + host)
	}
}

// apiKey prefers ELEVENLABS_API_KEY over the key stored in the vault.
func (a *app) apiKey(ctx context.Context) (string, error) {
	if a.env.APIKey != "" {
		return a.env.APIKey, nil
	}
	key, err := a.vault.Credential(vault.APIKeyRecord).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("unable to read API key: %w", err)
	}
	if key == "" {
		return "", fmt.Errorf("%w: set ELEVENLABS_API_KEY or run %s", elevenlabs.ErrMissingAPIKey, keyword("vista key set"))
	}
	return key, nil
}

func (a *app) client(ctx context.Context) (*elevenlabs.Client, error) {
	key, err := a.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	return elevenlabs.New(elevenlabs.Config{
		APIKey:            key,
		BaseURL:           a.cfg.ElevenLabs.BaseURL,
		Timeout:           a.cfg.ElevenLabs.Timeout,
		RequestsPerMinute: a.cfg.ElevenLabs.RequestsPerMinute,
		UserAgent:         "vista/" + Version,
		Logger:            log.Default().WithPrefix("elevenlabs"),
	})
}

func (a *app) telemetry(ctx context.Context) (*telemetry.Telemetry, error) {
	return telemetry.Setup(ctx, telemetry.Options{
		Enabled:      a.cfg.Telemetry.Enabled,
		ServiceName:  config.AppName,
		Version:      Version,
		OTLPEndpoint: a.cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: a.cfg.Telemetry.OTLPInsecure,
		Logger:       log.Default().WithPrefix("telemetry"),
	})
}
