// Package occupancy periodically reports the occupancy of every camera to the
// metric sinks.
package occupancy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/parkcast/core/logger"
	coremetrics "github.com/kilianp07/parkcast/core/metrics"
	"github.com/kilianp07/parkcast/core/model"
)

// DefaultSchedule runs the report every five minutes.
const DefaultSchedule = "@every 5m"

// SnapshotSource lists the current snapshots.
type SnapshotSource interface {
	AllSnapshots() []model.CameraSnapshot
}

// Summary is the outcome of one report run.
type Summary struct {
	Cameras int
	Empty   int
	Total   int
	Time    time.Time
}

// Reporter records occupancy on a cron schedule.
type Reporter struct {
	src  SnapshotSource
	rec  coremetrics.OccupancyRecorder
	log  logger.Logger
	now  func() time.Time

	mu   sync.Mutex
	last Summary
}

// NewReporter creates a reporter. A sink that does not record occupancy is
// replaced by NopSink.
func NewReporter(src SnapshotSource, sink coremetrics.MetricsSink, log logger.Logger) *Reporter {
	rec, ok := sink.(coremetrics.OccupancyRecorder)
	if !ok {
		rec = coremetrics.NopSink{}
	}
	return &Reporter{src: src, rec: rec, log: log, now: time.Now}
}

// RunOnce records one occupancy event per camera.
func (r *Reporter) RunOnce() (Summary, error) {
	now := r.now()
	snaps := r.src.AllSnapshots()
	evs := make([]coremetrics.OccupancyEvent, 0, len(snaps))
	sum := Summary{Cameras: len(snaps), Time: now}
	for _, s := range snaps {
		empty := s.EmptyCount()
		evs = append(evs, coremetrics.OccupancyEvent{CameraID: s.CameraID, Empty: empty, Total: len(s.Spots), Time: now})
		sum.Empty += empty
		sum.Total += len(s.Spots)
	}
	r.mu.Lock()
	r.last = sum
	r.mu.Unlock()
	if len(evs) == 0 {
		return sum, nil
	}
	if err := r.rec.RecordOccupancy(evs); err != nil {
		return sum, fmt.Errorf("record occupancy: %w", err)
	}
	return sum, nil
}

// Last returns the summary of the latest run.
func (r *Reporter) Last() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Start schedules the report and blocks until ctx is done.
func (r *Reporter) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, r.tick); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (r *Reporter) tick() {
	sum, err := r.RunOnce()
	if err != nil {
		r.log.Errorf("occupancy report: %v", err)
		return
	}
	r.log.Debugw("occupancy report", map[string]any{"cameras": sum.Cameras, "empty": sum.Empty, "total": sum.Total})
}

// ValidateSchedule reports whether spec parses as a cron schedule.
func ValidateSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}
