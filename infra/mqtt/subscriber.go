package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/parkcast/core/ingest"
	"github.com/kilianp07/parkcast/core/logger"
	"github.com/kilianp07/parkcast/core/monitoring"
	inflogger "github.com/kilianp07/parkcast/infra/logger"
)

// Ingester consumes one raw analysis result.
type Ingester interface {
	Ingest(ctx context.Context, cameraID string, raw []byte, ts time.Time) (ingest.Outcome, error)
}

type subscriber interface {
	Subscribe(topic, kind string, handler paho.MessageHandler) error
}

// AnalysisSubscriber feeds analysis results published by the cameras into
// the ingestion handler. The camera id is taken from the topic segment
// matching the single-level wildcard of the pattern.
type AnalysisSubscriber struct {
	cli     subscriber
	pattern string
	ing     Ingester
	log     logger.Logger
	timeout time.Duration
}

// NewAnalysisSubscriber creates a subscriber for pattern. An empty pattern
// uses DefaultAnalysisTopic.
func NewAnalysisSubscriber(cli subscriber, pattern string, ing Ingester) *AnalysisSubscriber {
	if pattern == "" {
		pattern = DefaultAnalysisTopic
	}
	return &AnalysisSubscriber{
		cli:     cli,
		pattern: pattern,
		ing:     ing,
		log:     inflogger.New("mqtt_analysis"),
		timeout: 5 * time.Second,
	}
}

// Start subscribes and blocks until ctx is done.
func (s *AnalysisSubscriber) Start(ctx context.Context) error {
	if err := s.cli.Subscribe(s.pattern, "analysis", s.onMessage); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (s *AnalysisSubscriber) onMessage(_ paho.Client, msg paho.Message) {
	defer monitoring.Contain(map[string]string{"component": "mqtt_analysis"})
	cameraID := cameraFromTopic(s.pattern, msg.Topic())
	if cameraID == "" {
		s.log.Warnw("analysis on unexpected topic", map[string]any{"topic": msg.Topic()})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	out, err := s.ing.Ingest(ctx, cameraID, msg.Payload(), payloadTimestamp(msg.Payload()))
	if err != nil {
		s.log.Errorf("ingest %s: %v", cameraID, err)
		return
	}
	s.log.Debugw("analysis ingested", map[string]any{
		"camera_id": cameraID,
		"accepted":  out.Accepted,
		"dropped":   out.Dropped,
		"degraded":  out.Degraded,
	})
}

// cameraFromTopic returns the topic segment at the position of the "+"
// wildcard in pattern, or the last segment when pattern has none.
func cameraFromTopic(pattern, topic string) string {
	parts := strings.Split(topic, "/")
	pat := strings.Split(pattern, "/")
	for i, p := range pat {
		if p == "+" {
			if len(parts) != len(pat) {
				return ""
			}
			return parts[i]
		}
	}
	return parts[len(parts)-1]
}

// payloadTimestamp reads an optional top-level "timestamp", either RFC3339
// or unix seconds. The zero time lets the store stamp the snapshot.
func payloadTimestamp(payload []byte) time.Time {
	var msg struct {
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil || len(msg.Timestamp) == 0 {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(msg.Timestamp, &s); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts
		}
		return time.Time{}
	}
	var secs float64
	if err := json.Unmarshal(msg.Timestamp, &secs); err == nil && secs > 0 {
		return time.Unix(0, int64(secs*float64(time.Second))).UTC()
	}
	return time.Time{}
}
