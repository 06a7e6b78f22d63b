package observability

import (
	"github.com/smallbiznis/invoicecore/internal/observability/logger"
	"github.com/smallbiznis/invoicecore/internal/observability/metrics"
	"github.com/smallbiznis/invoicecore/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
	),
	// The tracer provider and scheduler collectors register globally, so force them.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(metrics.SchedulerWithConfig),
)
