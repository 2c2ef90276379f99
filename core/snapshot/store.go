// Package snapshot holds the latest spot state reported by each camera and
// keeps the history log in step with it.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/parkcast/core/history"
	"github.com/kilianp07/parkcast/core/model"
	"github.com/kilianp07/parkcast/internal/eventbus"
)

// ErrDegradedDurability is returned when the in-memory state was updated but
// the history append failed.
var ErrDegradedDurability = errors.New("snapshot stored without durable history")

// SnapshotUpdated is published after every put.
type SnapshotUpdated struct {
	Snapshot model.CameraSnapshot
	Degraded bool
}

// PutResult describes the outcome of a put.
type PutResult struct {
	Records  int
	Degraded bool
}

// Store is the authoritative in-memory map of camera snapshots.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]model.CameraSnapshot

	writersMu sync.Mutex
	writers   map[string]*sync.Mutex

	log    history.Log
	events *eventbus.TypedBus[SnapshotUpdated]
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithEvents publishes a SnapshotUpdated event after each put.
func WithEvents(bus *eventbus.TypedBus[SnapshotUpdated]) Option {
	return func(s *Store) { s.events = bus }
}

// WithClock overrides the clock used for zero timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty store appending to log. A nil log keeps no
// history.
func NewStore(log history.Log, opts ...Option) *Store {
	s := &Store{
		snapshots: make(map[string]model.CameraSnapshot),
		writers:   make(map[string]*sync.Mutex),
		log:       log,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) writerFor(cameraID string) *sync.Mutex {
	s.writersMu.Lock()
	defer s.writersMu.Unlock()
	m, ok := s.writers[cameraID]
	if !ok {
		m = &sync.Mutex{}
		s.writers[cameraID] = m
	}
	return m
}

// PutSnapshot replaces the snapshot of cameraID with spots. History records
// are appended before the new snapshot becomes visible to readers.
func (s *Store) PutSnapshot(ctx context.Context, cameraID string, ts time.Time, spots []model.Spot) (PutResult, error) {
	if cameraID == "" {
		return PutResult{}, fmt.Errorf("put snapshot: empty camera id")
	}
	if ts.IsZero() {
		ts = s.now()
	}
	snap := model.CameraSnapshot{CameraID: cameraID, Timestamp: ts, Spots: make([]model.Spot, len(spots))}
	for i, sp := range spots {
		sp.CameraID = cameraID
		snap.Spots[i] = sp
	}
	snap = snap.Clone()

	w := s.writerFor(cameraID)
	w.Lock()
	defer w.Unlock()

	res := PutResult{}
	var appendErr error
	if recs := model.RecordsFor(snap); len(recs) > 0 && s.log != nil {
		if err := s.log.Append(ctx, recs); err != nil {
			appendErr = fmt.Errorf("%w: camera %s: %v", ErrDegradedDurability, cameraID, err)
			res.Degraded = true
		} else {
			res.Records = len(recs)
		}
	}

	s.mu.Lock()
	s.snapshots[cameraID] = snap
	s.mu.Unlock()

	if s.events != nil {
		s.events.Publish(SnapshotUpdated{Snapshot: snap.Clone(), Degraded: res.Degraded})
	}
	return res, appendErr
}

// AllSnapshots returns a deep copy of every snapshot ordered by camera ID.
func (s *Store) AllSnapshots() []model.CameraSnapshot {
	s.mu.RLock()
	out := make([]model.CameraSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

// Snapshot returns a copy of one camera's snapshot.
func (s *Store) Snapshot(cameraID string) (model.CameraSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[cameraID]
	if !ok {
		return model.CameraSnapshot{}, false
	}
	return snap.Clone(), true
}

// Len returns the number of cameras with a snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Restore rebuilds state from history records without appending them again.
// For each camera the records sharing its latest timestamp form the snapshot;
// a repeated spot index within that ingestion keeps the last record.
// Cameras already present with a newer timestamp are left untouched.
// Ingestions with zero spots append no rows, so a camera whose last ingestion
// was empty comes back with its previous non-empty snapshot.
func (s *Store) Restore(recs []model.HistoryRecord) int {
	latest := make(map[string]time.Time)
	for _, r := range recs {
		if t, ok := latest[r.CameraID]; !ok || r.Timestamp.After(t) {
			latest[r.CameraID] = r.Timestamp
		}
	}
	rebuilt := make(map[string]model.CameraSnapshot, len(latest))
	pos := make(map[model.SpotKey]int)
	for _, r := range recs {
		if r.CameraID == "" || !r.Timestamp.Equal(latest[r.CameraID]) {
			continue
		}
		snap := rebuilt[r.CameraID]
		snap.CameraID = r.CameraID
		snap.Timestamp = r.Timestamp
		sp := model.Spot{CameraID: r.CameraID, SpotIndex: r.SpotIndex, Status: r.Status, Lat: r.Lat, Lng: r.Lng}
		if i, ok := pos[sp.Key()]; ok {
			snap.Spots[i] = sp
		} else {
			pos[sp.Key()] = len(snap.Spots)
			snap.Spots = append(snap.Spots, sp)
		}
		rebuilt[r.CameraID] = snap
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, snap := range rebuilt {
		if cur, ok := s.snapshots[id]; ok && cur.Timestamp.After(snap.Timestamp) {
			continue
		}
		s.snapshots[id] = snap.Clone()
		n++
	}
	return n
}
