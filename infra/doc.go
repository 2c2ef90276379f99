// Package infra contains the technical adapters of the parking service: the
// MQTT camera feed, the Redis snapshot mirror, metrics exporters, Sentry
// monitoring and the zerolog logger. These packages depend only on the
// interfaces defined in the core packages.
package infra
