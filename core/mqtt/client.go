// Package mqtt defines the broker-facing contracts used by the service.
package mqtt

// Publisher sends one message to the broker. kind selects the configured QoS
// ("analysis", "snapshot").
type Publisher interface {
	Publish(topic, kind string, retained bool, payload []byte) error
}
