package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/parkcast/core/metrics"
	"github.com/kilianp07/parkcast/core/snapshot"
	"github.com/kilianp07/parkcast/internal/eventbus"
)

// StartOccupancyCollector subscribes to snapshot updates and records the
// occupancy of each updated camera. It stops when the context is canceled
// or the bus is closed.
func StartOccupancyCollector(ctx context.Context, bus *eventbus.TypedBus[snapshot.SnapshotUpdated], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.OccupancyRecorder)
	if !ok {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				snap := ev.Snapshot
				_ = rec.RecordOccupancy([]coremetrics.OccupancyEvent{{
					CameraID: snap.CameraID,
					Empty:    snap.EmptyCount(),
					Total:    len(snap.Spots),
					Time:     snap.Timestamp,
				}})
			}
		}
	}()
}
