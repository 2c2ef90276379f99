package logger

// Logger exposes the severity levels used across the service. Components
// receive a Logger scoped to their name; structured variants take a field map.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	// Warnw logs an anomaly with structured fields, e.g. a dropped spot entry.
	Warnw(msg string, fields map[string]any)
	Errorf(format string, args ...any)
}
