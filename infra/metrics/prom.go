package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/parkcast/core/metrics"
)

// PromSink records parking events in Prometheus metrics.
type PromSink struct {
	ingestions   *prometheus.CounterVec
	spots        *prometheus.CounterVec
	ingestLat    prometheus.Histogram
	queries      *prometheus.CounterVec
	queryLat     prometheus.Histogram
	availability prometheus.Gauge
	wait         prometheus.Gauge
	empty        *prometheus.GaugeVec
	total        *prometheus.GaugeVec
}

// NewPromSink registers parking metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered under the same name are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.ingestions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkcast_ingestions_total",
		Help: "Camera analysis results processed, by outcome",
	}, []string{"camera_id", "outcome"})); err != nil {
		return nil, err
	}
	if s.spots, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkcast_ingested_spots_total",
		Help: "Spot entries seen during ingestion, by kind",
	}, []string{"camera_id", "kind"})); err != nil {
		return nil, err
	}
	if s.ingestLat, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parkcast_ingestion_duration_seconds",
		Help:    "Time spent validating and storing one analysis result",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if s.queries, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkcast_queries_total",
		Help: "Availability queries evaluated",
	}, []string{"located"})); err != nil {
		return nil, err
	}
	if s.queryLat, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parkcast_query_duration_seconds",
		Help:    "Time spent evaluating one availability query",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if s.availability, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parkcast_predicted_availability",
		Help: "Probability that at least one spot is empty at the last queried arrival time",
	})); err != nil {
		return nil, err
	}
	if s.wait, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parkcast_expected_wait_minutes",
		Help: "Expected wait of the last evaluated query",
	})); err != nil {
		return nil, err
	}
	if s.empty, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parkcast_camera_empty_spots",
		Help: "Empty spots in the latest snapshot of each camera",
	}, []string{"camera_id"})); err != nil {
		return nil, err
	}
	if s.total, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parkcast_camera_spots",
		Help: "Spots in the latest snapshot of each camera",
	}, []string{"camera_id"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordIngestion counts the ingestion and its spot breakdown.
func (s *PromSink) RecordIngestion(ev coremetrics.IngestionEvent) error {
	s.ingestions.WithLabelValues(ev.CameraID, string(ev.Outcome)).Inc()
	s.spots.WithLabelValues(ev.CameraID, "accepted").Add(float64(ev.Spots))
	s.spots.WithLabelValues(ev.CameraID, "dropped").Add(float64(ev.Dropped))
	s.spots.WithLabelValues(ev.CameraID, "uncalibrated").Add(float64(ev.Uncalibrated))
	s.ingestLat.Observe(ev.Duration.Seconds())
	return nil
}

// RecordQuery counts the query and keeps the last prediction.
func (s *PromSink) RecordQuery(ev coremetrics.QueryEvent) error {
	located := "false"
	if ev.HasLocation {
		located = "true"
	}
	s.queries.WithLabelValues(located).Inc()
	s.queryLat.Observe(ev.Duration.Seconds())
	s.availability.Set(ev.ProbabilityAnyEmpty)
	s.wait.Set(ev.ExpectedWaitMinutes)
	return nil
}

// RecordOccupancy sets the per-camera gauges.
func (s *PromSink) RecordOccupancy(evs []coremetrics.OccupancyEvent) error {
	for _, ev := range evs {
		s.empty.WithLabelValues(ev.CameraID).Set(float64(ev.Empty))
		s.total.WithLabelValues(ev.CameraID).Set(float64(ev.Total))
	}
	return nil
}
