// Package history persists the append-only audit trail of spot observations.
// Every backend accepts whole ingestion batches and guarantees that records of
// concurrent appends never interleave.
package history

import (
	"context"
	"sort"
	"time"

	"github.com/kilianp07/parkcast/core/model"
)

// Query filters records. Zero values match everything.
type Query struct {
	CameraID string
	Start    time.Time
	End      time.Time
}

// Match reports whether rec satisfies q.
func (q Query) Match(rec model.HistoryRecord) bool {
	if q.CameraID != "" && rec.CameraID != q.CameraID {
		return false
	}
	if !q.Start.IsZero() && rec.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.Timestamp.After(q.End) {
		return false
	}
	return true
}

// Log is an append-only sink of history records.
type Log interface {
	// Append durably writes one ingestion batch. Records of a batch are
	// written contiguously.
	Append(ctx context.Context, recs []model.HistoryRecord) error
	// Query returns matching records in append order.
	Query(ctx context.Context, q Query) ([]model.HistoryRecord, error)
	Close() error
}

// sortByTime orders records by timestamp, keeping append order for ties.
func sortByTime(recs []model.HistoryRecord) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
}
