package metrics

import "time"

// IngestionOutcome labels the result of one ingestion.
type IngestionOutcome string

const (
	IngestionAccepted IngestionOutcome = "accepted"
	IngestionRejected IngestionOutcome = "rejected"
	IngestionDegraded IngestionOutcome = "degraded"
)

// IngestionEvent describes one processed camera analysis result.
type IngestionEvent struct {
	CameraID     string
	Outcome      IngestionOutcome
	Spots        int
	Dropped      int
	Uncalibrated int
	Duration     time.Duration
	Time         time.Time
}

// MetricsSink records ingestion events for observability purposes.
type MetricsSink interface {
	RecordIngestion(ev IngestionEvent) error
}

// QueryEvent describes one evaluated availability query.
type QueryEvent struct {
	Results             int
	EmptySpots          int
	HasLocation         bool
	ProbabilityAnyEmpty float64
	ExpectedWaitMinutes float64
	Duration            time.Duration
	Time                time.Time
}

// QueryRecorder records query evaluations.
type QueryRecorder interface {
	RecordQuery(ev QueryEvent) error
}

// OccupancyEvent is the empty/total count of one camera at a point in time.
type OccupancyEvent struct {
	CameraID string
	Empty    int
	Total    int
	Time     time.Time
}

// OccupancyRecorder records per-camera occupancy.
type OccupancyRecorder interface {
	RecordOccupancy(evs []OccupancyEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordIngestion(IngestionEvent) error   { return nil }
func (NopSink) RecordQuery(QueryEvent) error           { return nil }
func (NopSink) RecordOccupancy([]OccupancyEvent) error { return nil }
