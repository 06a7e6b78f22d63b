package observability

import (
	"strings"

	"github.com/smallbiznis/invoicecore/internal/config"
	"github.com/smallbiznis/invoicecore/internal/observability/logger"
	"github.com/smallbiznis/invoicecore/internal/observability/metrics"
	"github.com/smallbiznis/invoicecore/internal/observability/tracing"
)

// Config is the observability slice of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	ratio := cfg.OTLPSamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}
	protocol := strings.ToLower(strings.TrimSpace(cfg.OTLPProtocol))
	if protocol != "http" {
		protocol = "grpc"
	}
	return Config{
		ServiceName:          nonEmpty(cfg.AppName, "invoicecore"),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             nonEmpty(strings.ToLower(cfg.LogLevel), "info"),
		LogFormat:            nonEmpty(strings.ToLower(cfg.LogFormat), "json"),
		OtelEnabled:          cfg.OTLPEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug is true for debug logging and for development-like environments.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName: c.ServiceName,
		Environment: c.Environment,
		Version:     c.Version,
		Level:       c.LogLevel,
		Format:      c.LogFormat,
		Debug:       c.Debug(),
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}

func nonEmpty(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
