// Package telemetry installs the OpenTelemetry tracer and meter providers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options configures Setup.
type Options struct {
	Enabled      bool
	ServiceName  string
	Version      string
	OTLPEndpoint string
	OTLPInsecure bool
	// TraceWriter receives stdout-exporter spans when no OTLP endpoint is
	// set. Defaults to stderr.
	TraceWriter io.Writer
	Logger      *log.Logger
}

// Telemetry holds the installed providers.
type Telemetry struct {
	// MetricsHandler serves the Prometheus exposition. Nil when disabled.
	MetricsHandler http.Handler

	shutdown func(context.Context) error
	logger   *log.Logger
}

// Setup installs global providers. When opts.Enabled is false nothing is
// installed and the global no-op providers stay in place.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("telemetry")
	}
	t := &Telemetry{
		shutdown: func(context.Context) error { return nil },
		logger:   opts.Logger,
	}
	if !opts.Enabled {
		return t, nil
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "vista"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			attribute.String("service.version", opts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	tp, err := initTracer(ctx, opts, res)
	if err != nil {
		return nil, fmt.Errorf("telemetry tracer: %w", err)
	}
	otel.SetTracerProvider(tp)

	mp, handler, err := initMetrics(res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry metrics: %w", err)
	}
	otel.SetMeterProvider(mp)

	t.MetricsHandler = handler
	t.shutdown = func(ctx context.Context) error {
		var errs []error
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
	return t, nil
}

func initTracer(ctx context.Context, opts Options, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	if endpoint := strings.TrimSpace(opts.OTLPEndpoint); endpoint != "" {
		exOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if opts.OTLPInsecure {
			exOpts = append(exOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, exOpts...)
		if err != nil {
			return nil, err
		}
		opts.Logger.Debug("Telemetry initialized", "exporter", "otlp", "endpoint", endpoint)
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		), nil
	}

	w := opts.TraceWriter
	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("Telemetry initialized", "exporter", "stdout")
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// initMetrics uses a private registry so repeated setups do not collide on
// the default one.
func initMetrics(res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	return mp, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// ServeMetrics serves MetricsHandler on addr at /metrics until ctx is done.
func (t *Telemetry) ServeMetrics(ctx context.Context, addr string) error {
	if t.MetricsHandler == nil {
		return errors.New("telemetry is disabled")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", t.MetricsHandler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	t.logger.Info("Serving metrics", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
