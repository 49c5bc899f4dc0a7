// Package metrics exports dispatcher activity as OpenTelemetry metrics.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

// MeterName is the instrumentation scope of every instrument in this package.
const MeterName = "github.com/coregx/streamsink"

// Provider owns the SDK meter provider of the process.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	serviceName   string
	serviceVer    string
	grpcEndpoint  string
	interval      time.Duration
	readers       []sdkmetric.Reader
}

// Option configures a Provider.
type Option func(*Provider)

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(p *Provider) {
		p.serviceName = name
	}
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(version string) Option {
	return func(p *Provider) {
		p.serviceVer = version
	}
}

// WithOTLPGRPCEndpoint exports to an OTLP collector over gRPC.
// Without it metrics are recorded but never exported.
func WithOTLPGRPCEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.grpcEndpoint = endpoint
	}
}

// WithExportInterval sets the periodic export interval.
func WithExportInterval(d time.Duration) Option {
	return func(p *Provider) {
		p.interval = d
	}
}

// WithReader attaches an additional reader, e.g. a ManualReader in tests.
func WithReader(r sdkmetric.Reader) Option {
	return func(p *Provider) {
		p.readers = append(p.readers, r)
	}
}

// NewProvider builds the meter provider and registers it globally.
func NewProvider(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{
		serviceName: "streamsink",
		serviceVer:  "dev",
		interval:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(p.serviceName),
			semconv.ServiceVersion(p.serviceVer),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range p.readers {
		mpOpts = append(mpOpts, sdkmetric.WithReader(r))
	}

	if p.grpcEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(p.grpcEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(p.interval)),
		))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(mpOpts...)
	otel.SetMeterProvider(p.meterProvider)
	return p, nil
}

// Meter returns the meter used by Notifier.
func (p *Provider) Meter() metric.Meter {
	return p.meterProvider.Meter(MeterName)
}

// Shutdown flushes and stops every reader.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}

var _ streamsink.NotificationService = (*Notifier)(nil)

// Notifier is a streamsink.NotificationService that records counters and a
// delivery duration histogram.
type Notifier struct {
	retries          metric.Int64Counter
	deadLettered     metric.Int64Counter
	deadLetterFailed metric.Int64Counter
	deliveries       metric.Int64Counter
	duration         metric.Float64Histogram
}

// NewNotifier creates the instruments on meter.
func NewNotifier(meter metric.Meter) (*Notifier, error) {
	n := &Notifier{}
	var err error

	if n.retries, err = meter.Int64Counter("streamsink.dispatch.retries",
		metric.WithDescription("Failed attempts that were scheduled for retry"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retries counter: %w", err)
	}

	if n.deadLettered, err = meter.Int64Counter("streamsink.dispatch.dead_lettered",
		metric.WithDescription("Messages published to a dead-letter stream"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create dead-lettered counter: %w", err)
	}

	if n.deadLetterFailed, err = meter.Int64Counter("streamsink.dispatch.dead_letter_failures",
		metric.WithDescription("Exhausted messages committed without a dead-letter record"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create dead-letter failure counter: %w", err)
	}

	if n.deliveries, err = meter.Int64Counter("streamsink.dispatch.deliveries",
		metric.WithDescription("Deliveries by final outcome"),
		metric.WithUnit("{delivery}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create deliveries counter: %w", err)
	}

	if n.duration, err = meter.Float64Histogram("streamsink.dispatch.duration",
		metric.WithDescription("Time from first attempt to final outcome"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return n, nil
}

func (n *Notifier) NotifyRetry(ctx context.Context, env *model.Envelope, _ error, _ time.Duration) error {
	n.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("stream", env.Stream)))
	return nil
}

func (n *Notifier) NotifyDeadLettered(ctx context.Context, stream string, rec model.DeadLetterRecord) error {
	n.deadLettered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stream", rec.OriginalStream),
		attribute.String("dead_letter_stream", stream),
	))
	return nil
}

func (n *Notifier) NotifyDeadLetterFailed(ctx context.Context, env *model.Envelope, _ error) error {
	n.deadLetterFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("stream", env.Stream)))
	return nil
}

func (n *Notifier) NotifyOutcome(ctx context.Context, env *model.Envelope, outcome streamsink.Outcome, elapsed time.Duration) error {
	attrs := metric.WithAttributes(
		attribute.String("stream", env.Stream),
		attribute.String("outcome", outcome.String()),
	)
	n.deliveries.Add(ctx, 1, attrs)
	n.duration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}
