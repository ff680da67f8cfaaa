package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vista-tts/vista/internal/cache"
	"github.com/vista-tts/vista/internal/config"
	"github.com/vista-tts/vista/internal/relay"
	"github.com/vista-tts/vista/internal/stream"
)

var (
	relayCmd = &cobra.Command{
		Use:   "relay",
		Short: "Share one ElevenLabs account over NATS",
		Long: paragraph(fmt.Sprintf("\nA relay worker synthesizes requests published on NATS and streams the audio back. Clients use it with %s.",
			keyword("vista speak --relay"))),
	}

	relayServeCmd = &cobra.Command{
		Use:     "serve",
		Short:   "Run a relay worker",
		Example: paragraph("vista relay serve\nvista relay serve --embedded --port 4222"),
		Args:    cobra.NoArgs,
		RunE:    runRelayServe,
	}
)

func init() {
	f := relayServeCmd.Flags()
	f.String("url", "", "NATS server URL")
	f.Bool("embedded", false, "run an in-process NATS server")
	f.Int("port", 0, "port of the embedded NATS server")
	f.Int("concurrency", 0, "streams served at once")
	_ = viper.BindPFlag("relay.url", f.Lookup("url"))
	_ = viper.BindPFlag("relay.embedded", f.Lookup("embedded"))
	_ = viper.BindPFlag("relay.port", f.Lookup("port"))
	_ = viper.BindPFlag("relay.max_concurrent", f.Lookup("concurrency"))

	relayCmd.AddCommand(relayServeCmd)
}

func runRelayServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Default().WithPrefix("relay")

	tel, err := a.telemetry(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tel)

	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	var backend stream.Backend = client

	if a.cfg.Cache.Enabled {
		cfg := a.cacheConfig()
		dc, err := cache.NewDiskCache(cfg)
		if err != nil {
			logger.Warn("Audio cache unavailable", "dir", cfg.Dir, "err", err)
		} else {
			defer dc.Close() //nolint:errcheck
			backend = cache.NewBackend(client, dc, cfg.ReplayChunkSize)
			go dc.RunJanitor(ctx, cfg.CleanupInterval, cfg.TTL)
		}
	}

	url := a.cfg.Relay.URL
	if a.cfg.Relay.Embedded {
		srv, err := relay.StartEmbedded(a.cfg.Relay.Host, a.cfg.Relay.Port, logger)
		if err != nil {
			return err
		}
		defer srv.Shutdown()
		url = srv.ClientURL()
	}

	conn, err := relay.Connect(relay.ConnectOptions{
		URL:   url,
		Name:  "vista-relay",
		Token: a.cfg.Relay.Token,
	}, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	worker := relay.NewWorker(ctx, conn, backend, relay.WorkerOptions{
		Queue:         a.cfg.Relay.Queue,
		MaxConcurrent: a.cfg.Relay.MaxConcurrent,
		Timeout:       a.cfg.Relay.Timeout,
		Logger:        logger,
	})
	if err := worker.Start(); err != nil {
		return fmt.Errorf("unable to start relay worker: %w", err)
	}
	defer worker.Close()

	if tel.MetricsHandler != nil {
		go func() {
			if err := tel.ServeMetrics(ctx, a.cfg.Telemetry.PrometheusBind); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server stopped", "err", err)
			}
		}()
	}

	watchConfig(client, logger)

	logger.Info("Relay serving", "url", url, "queue", a.cfg.Relay.Queue, "concurrency", a.cfg.Relay.MaxConcurrent)
	<-ctx.Done()
	logger.Info("Relay shutting down", "active", worker.Active())
	return nil
}

// rateLimited is a client whose request rate can change at runtime.
type rateLimited interface {
	SetRequestsPerMinute(rpm int)
}

// watchConfig reloads the config file on change and applies the new rate
// limit. Other settings need a restart.
func watchConfig(client rateLimited, logger *log.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Debug("Config file changed", "file", e.Name, "op", e.Op)
		applyConfigChange(viper.GetViper(), client, logger)
	})
	viper.WatchConfig()
}

func applyConfigChange(v *viper.Viper, client rateLimited, logger *log.Logger) {
	cfg, err := config.LoadFromViper(v)
	if err != nil {
		logger.Warn("Ignoring invalid configuration", "err", err)
		return
	}
	client.SetRequestsPerMinute(cfg.ElevenLabs.RequestsPerMinute)
	logger.Info("Applied rate limit", "requests_per_minute", cfg.ElevenLabs.RequestsPerMinute)
}
