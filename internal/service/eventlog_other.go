//go:build !windows

package service

import "servicectl/internal/logger"

// ReportStartupError logs the error; the Event Log exists only on Windows.
func ReportStartupError(serviceName string, err error) {
	log := logger.WithComponent("service-runtime")
	log.Error().Err(err).Str("service", serviceName).Msg("Failed to start")
}
