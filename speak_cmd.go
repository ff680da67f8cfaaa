package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/vista-tts/vista/internal/audio"
	"github.com/vista-tts/vista/internal/cache"
	"github.com/vista-tts/vista/internal/history"
	"github.com/vista-tts/vista/internal/markdown"
	"github.com/vista-tts/vista/internal/relay"
	"github.com/vista-tts/vista/internal/stream"
	"github.com/vista-tts/vista/internal/telemetry"
	"github.com/vista-tts/vista/internal/ui"
)

var (
	speakFile         string
	speakMarkdown     bool
	speakClipboard    bool
	speakSeed         uint32
	speakPreviousText string
	speakNextText     string
	speakOut          string
	speakRelay        bool
	speakNoCache      bool
	speakMockAudio    bool
	speakQuiet        bool

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT]",
		Short: "Speak text as it is synthesized",
		Long: paragraph(fmt.Sprintf("\n%s text from the arguments, a file, the clipboard or stdin. Audio plays while it streams in; long input is split at sentence boundaries.",
			keyword("Speak"))),
		Example: paragraph("vista speak \"Hello there\"\nvista speak --file README.md\necho hello | vista speak --voice 21m00Tcm4TlvDq8ikWAM\nvista speak --format mp3_44100_128 --out ./audio \"Save this\""),
		RunE:    runSpeak,
	}
)

func init() {
	f := speakCmd.Flags()
	f.StringVarP(&speakFile, "file", "f", "", "read text from a file (- for stdin)")
	f.BoolVar(&speakMarkdown, "markdown", false, "treat the input as markdown")
	f.BoolVar(&speakClipboard, "clipboard", false, "read text from the clipboard")
	f.StringP("voice", "v", "", "voice id")
	f.StringP("model", "m", "", "model id")
	f.String("format", "", "output format, e.g. pcm_22050 or mp3_44100_128")
	f.Float64("stability", 0, "voice stability, 0.0 to 1.0")
	f.Float64("similarity", 0, "similarity boost, 0.0 to 1.0")
	f.Float64("style", 0, "style exaggeration, 0.0 to 1.0")
	f.Float64("speed", 0, "speaking speed, 0.7 to 1.2")
	f.Bool("speaker-boost", false, "boost similarity to the original speaker")
	f.Uint32Var(&speakSeed, "seed", 0, "sampling seed for repeatable output")
	f.StringVar(&speakPreviousText, "previous-text", "", "text spoken before this input, for continuity")
	f.StringVar(&speakNextText, "next-text", "", "text spoken after this input, for continuity")
	f.StringVarP(&speakOut, "out", "o", "", "write audio files to this directory instead of playing them")
	f.BoolVar(&speakRelay, "relay", false, "synthesize through a relay worker over NATS")
	f.BoolVar(&speakNoCache, "no-cache", false, "bypass the audio cache")
	f.BoolVar(&speakMockAudio, "mock-audio", false, "play on a simulated device")
	f.BoolVarP(&speakQuiet, "quiet", "q", false, "do not show the status view")

	_ = viper.BindPFlag("voice.id", f.Lookup("voice"))
	_ = viper.BindPFlag("voice.model", f.Lookup("model"))
	_ = viper.BindPFlag("voice.format", f.Lookup("format"))
	_ = viper.BindPFlag("voice.stability", f.Lookup("stability"))
	_ = viper.BindPFlag("voice.similarity_boost", f.Lookup("similarity"))
	_ = viper.BindPFlag("voice.style", f.Lookup("style"))
	_ = viper.BindPFlag("voice.speed", f.Lookup("speed"))
	_ = viper.BindPFlag("voice.speaker_boost", f.Lookup("speaker-boost"))
}

func runSpeak(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	pipe, err := stdinIsPipe()
	if err != nil {
		return err
	}
	text, err := input{
		args:       args,
		file:       speakFile,
		clipboard:  speakClipboard,
		markdown:   speakMarkdown,
		codeMarker: a.cfg.Text.CodeMarker,
		stdin:      os.Stdin,
		stdinPipe:  pipe,
	}.read()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := a.telemetry(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tel)

	base := stream.SynthesisRequest{
		VoiceID:       a.cfg.Voice.ID,
		ModelID:       a.cfg.Voice.Model,
		OutputFormat:  a.cfg.Voice.Format,
		VoiceSettings: a.cfg.Voice.VoiceSettings(),
	}
	if cmd.Flags().Changed("seed") {
		seed := speakSeed
		base.Seed = &seed
	}
	media, err := stream.ParseOutputFormat(base.Format())
	if err != nil {
		return err
	}
	requests := buildRequests(base, markdown.Segments(text, a.cfg.Text.MaxCharacters), speakPreviousText, speakNextText)

	backend, closeBackend, err := a.backend(ctx, speakRelay, !speakNoCache)
	if err != nil {
		return err
	}
	defer closeBackend()

	sinks, err := a.sinkFactory(media, speakOut, speakMockAudio)
	if err != nil {
		return err
	}

	opts := a.cfg.Playback.StreamOptions()
	opts.Logger = log.Default().WithPrefix("stream")
	ctrl, err := stream.NewController(backend, sinks, opts)
	if err != nil {
		return err
	}
	defer ctrl.Close() //nolint:errcheck

	pb := newPlayback(ctrl, requests)
	if hist := a.openHistory(ctx); hist != nil {
		defer hist.Close() //nolint:errcheck
		pb.finished = func(s *stream.Session) {
			if err := hist.Record(context.WithoutCancel(ctx), history.FromSession(s)); err != nil {
				log.Warn("Could not record session", "session", s.ID(), "err", err)
			}
		}
	}

	if !speakQuiet && term.IsTerminal(int(os.Stdout.Fd())) {
		err = runWithStatus(ctx, pb)
	} else {
		err = pb.run(ctx)
	}

	if speakOut != "" {
		for _, s := range pb.Sessions() {
			if s.State() == stream.StateFinalized && s.Locator() != "" {
				fmt.Fprintln(cmd.OutOrStdout(), s.Locator())
			}
		}
	}

	switch {
	case err == nil:
		return nil
	case pb.Aborted(), errors.Is(err, stream.ErrAborted), errors.Is(err, context.Canceled):
		fmt.Fprintln(cmd.ErrOrStderr(), faint("Stopped."))
		return nil
	default:
		return err
	}
}

// runWithStatus plays pb while a Bubble Tea status view polls it.
func runWithStatus(ctx context.Context, pb *playback) error {
	errc := make(chan error, 1)
	go func() { errc <- pb.run(ctx) }()

	p := tea.NewProgram(ui.NewModel(pb.snapshot, pb.abort), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		pb.abort()
		<-errc
		return fmt.Errorf("unable to run status view: %w", err)
	}
	return <-errc
}

// backend returns the synthesis backend: the ElevenLabs client, or a relay
// over NATS, optionally behind the disk cache.
func (a *app) backend(ctx context.Context, viaRelay, useCache bool) (stream.Backend, func(), error) {
	var (
		backend stream.Backend
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if viaRelay {
		logger := log.Default().WithPrefix("relay")
		conn, err := relay.Connect(relay.ConnectOptions{
			URL:   a.cfg.Relay.URL,
			Name:  "vista-speak",
			Token: a.cfg.Relay.Token,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", stream.ErrBackendUnavailable, err)
		}
		closers = append(closers, conn.Close)
		backend = relay.NewBackend(conn, relay.BackendOptions{Logger: logger})
	} else {
		client, err := a.client(ctx)
		if err != nil {
			return nil, nil, err
		}
		backend = client
	}

	if useCache && a.cfg.Cache.Enabled {
		dc, err := cache.NewDiskCache(a.cacheConfig())
		if err != nil {
			log.Warn("Audio cache unavailable", "dir", a.cfg.Cache.Dir, "err", err)
		} else {
			closers = append(closers, func() { _ = dc.Close() })
			backend = cache.NewBackend(backend, dc, 0)
		}
	}
	return backend, cleanup, nil
}

func (a *app) cacheConfig() cache.Config {
	cfg := cache.DefaultConfig(a.cfg.Cache.Dir)
	cfg.Capacity = int64(a.cfg.Cache.MaxSizeMB) * 1024 * 1024
	cfg.CompressionLevel = a.cfg.Cache.CompressionLevel
	cfg.TTL = a.cfg.Cache.TTL
	return cfg
}

// sinkFactory returns where audio goes: files under out, a simulated
// device, or the speaker.
func (a *app) sinkFactory(media stream.MediaType, out string, mock bool) (stream.SinkFactory, error) {
	if out != "" {
		return audio.FileFactory(audio.FileSinkOptions{Dir: out, Keep: true}), nil
	}
	if !media.IsPCM() {
		return nil, fmt.Errorf("%w: %s cannot be played on the speaker, use a pcm_* format or --out", stream.ErrUnsupportedFormat, media)
	}

	sinkOpts := []audio.SinkOption{
		audio.WithVolume(a.cfg.Playback.Volume),
		audio.WithLogger(log.Default().WithPrefix("audio")),
	}
	if mock {
		return audio.SpeakerFactory(audio.NewMockOutput(media.SampleRate), sinkOpts...), nil
	}
	device, err := audio.NewContext(audio.ContextOptions{
		SampleRate:   media.SampleRate,
		ReadyTimeout: a.cfg.Playback.ReadyTimeout,
	})
	if err != nil {
		return nil, err
	}
	return audio.SpeakerFactory(device, sinkOpts...), nil
}

// openHistory opens the history store, or returns nil when history is off
// or unavailable. Old entries are pruned on open.
func (a *app) openHistory(ctx context.Context) *history.Store {
	if !a.cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(ctx, a.cfg.History.Path)
	if err != nil {
		log.Warn("History unavailable", "path", a.cfg.History.Path, "err", err)
		return nil
	}
	if a.cfg.History.Retention > 0 {
		if n, err := store.Prune(ctx, a.cfg.History.Retention); err != nil {
			log.Warn("Could not prune history", "err", err)
		} else if n > 0 {
			log.Debug("Pruned history", "entries", n)
		}
	}
	return store
}

func shutdownTelemetry(t *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.Shutdown(ctx); err != nil {
		log.Warn("Telemetry shutdown", "err", err)
	}
}
