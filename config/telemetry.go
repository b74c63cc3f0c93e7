package config

import (
	"go.uber.org/zap"

	"github.com/wippyai/capture-bridge/telemetry"
)

// Telemetry returns the span export options for service.
func (c Config) Telemetry(service string, logger *zap.Logger) telemetry.Options {
	return telemetry.Options{
		Logger:      logger,
		ServiceName: service,
		Endpoint:    c.OTelEndpoint,
		DriverKind:  c.DriverKind,
		DriverPath:  c.DriverPath,
		SampleRatio: c.OTelSampleRatio,
		Enabled:     c.OTelEnabled,
	}
}
