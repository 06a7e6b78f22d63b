package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentsApplied     metric.Int64Counter
	settlementReplays   metric.Int64Counter
	statusTransitions   metric.Int64Counter
	couponInvalidations metric.Int64Counter
	concurrentConflicts metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "invoicecore"
	}
	meter := provider.Meter(name)

	paymentsApplied, err := meter.Int64Counter("invoicecore_payments_applied_total")
	if err != nil {
		return nil, err
	}
	settlementReplays, err := meter.Int64Counter("invoicecore_settlement_replays_total")
	if err != nil {
		return nil, err
	}
	statusTransitions, err := meter.Int64Counter("invoicecore_invoice_transitions_total")
	if err != nil {
		return nil, err
	}
	couponInvalidations, err := meter.Int64Counter("invoicecore_coupon_invalidations_total")
	if err != nil {
		return nil, err
	}
	concurrentConflicts, err := meter.Int64Counter("invoicecore_concurrent_modifications_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentsApplied:     paymentsApplied,
		settlementReplays:   settlementReplays,
		statusTransitions:   statusTransitions,
		couponInvalidations: couponInvalidations,
		concurrentConflicts: concurrentConflicts,
	}, nil
}

// RecordPaymentApplied increments applied payment counts per channel.
func (m *Metrics) RecordPaymentApplied(ctx context.Context, channel string, isDeposit bool) {
	if m == nil {
		return
	}
	kind := "full"
	if isDeposit {
		kind = "deposit"
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("payment_kind", kind),
	)
	m.paymentsApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSettlementReplay counts settlement callbacks that were already applied.
func (m *Metrics) RecordSettlementReplay(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("channel", strings.TrimSpace(channel)))
	m.settlementReplays.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStatusTransition increments invoice lifecycle transition counts.
func (m *Metrics) RecordStatusTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from_status", strings.TrimSpace(from)),
		attribute.String("to_status", strings.TrimSpace(to)),
	)
	m.statusTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCouponInvalidated counts coupons dropped after line items changed.
func (m *Metrics) RecordCouponInvalidated(ctx context.Context) {
	if m == nil {
		return
	}
	m.couponInvalidations.Add(ctx, 1)
}

// RecordConcurrentModification counts optimistic version conflicts per operation.
func (m *Metrics) RecordConcurrentModification(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.concurrentConflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"channel":      {},
	"payment_kind": {},
	"from_status":  {},
	"to_status":    {},
	"operation":    {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
