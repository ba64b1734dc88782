package middleware

import "go.uber.org/zap"

// LogAt forwards a decoded Log frame to logger at the level its severity
// maps to. An unrecognized severity string (or the explicit "None")
// degrades to Information, matching the spec's fallback rule.
func LogAt(logger *zap.Logger, severity, message string) {
	switch severity {
	case "Trace", "Debug":
		logger.Debug(message, zap.String("severity", severity))
	case "Warning":
		logger.Warn(message, zap.String("severity", severity))
	case "Error":
		logger.Error(message, zap.String("severity", severity))
	case "Critical":
		// Not logger.DPanic: a Critical record is still just a forwarded
		// log line from the hosted service, not a bug in this process,
		// and DPanic panics under a development logger configuration.
		logger.Error(message, zap.String("severity", severity))
	default: // "Information", "None", and anything unrecognized
		logger.Info(message, zap.String("severity", severity))
	}
}
