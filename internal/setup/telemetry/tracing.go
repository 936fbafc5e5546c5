package telemetry

import (
	"context"

	"github.com/robalyx/timeline/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.opentelemetry.io/otel/attribute"
)

// SetupTracing configures span export to Uptrace. Tracing is opt-in: without a
// DSN no exporter is installed and the returned shutdown does nothing.
func SetupTracing(cfg *config.Telemetry, serviceType ServiceType, version, instanceID string) func(context.Context) error {
	if cfg.UptraceDSN == "" {
		return func(context.Context) error { return nil }
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName("timeline-"+serviceType.String()),
		uptrace.WithServiceVersion(version),
		uptrace.WithDeploymentEnvironment(cfg.Environment),
		uptrace.WithResourceAttributes(attribute.String("service.instance.id", instanceID)),
	)

	return uptrace.Shutdown
}
