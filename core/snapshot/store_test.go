package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/parkcast/core/history"
	"github.com/kilianp07/parkcast/core/model"
	"github.com/kilianp07/parkcast/internal/eventbus"
)

var t0 = time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)

func spots(statuses ...model.Status) []model.Spot {
	out := make([]model.Spot, len(statuses))
	for i, st := range statuses {
		out[i] = model.Spot{SpotIndex: i, Status: st}
	}
	return out
}

func TestPutSnapshot_ReplacesWholeCamera(t *testing.T) {
	log := history.NewMemoryLog()
	s := NewStore(log)
	ctx := context.Background()

	_, err := s.PutSnapshot(ctx, "cam-001", t0, spots(model.StatusEmpty, model.StatusOccupied, model.StatusEmpty))
	require.NoError(t, err)
	_, err = s.PutSnapshot(ctx, "cam-002", t0, spots(model.StatusOccupied))
	require.NoError(t, err)
	res, err := s.PutSnapshot(ctx, "cam-001", t0.Add(time.Minute), spots(model.StatusOccupied))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records)

	snap, ok := s.Snapshot("cam-001")
	require.True(t, ok)
	require.Len(t, snap.Spots, 1)
	assert.Equal(t, "cam-001", snap.Spots[0].CameraID)
	assert.Equal(t, t0.Add(time.Minute), snap.Timestamp)

	other, ok := s.Snapshot("cam-002")
	require.True(t, ok)
	assert.Len(t, other.Spots, 1)
	assert.Equal(t, 5, log.Len())
}

func TestPutSnapshot_EmptySpots(t *testing.T) {
	log := history.NewMemoryLog()
	s := NewStore(log)
	_, err := s.PutSnapshot(context.Background(), "cam-001", t0, spots(model.StatusEmpty))
	require.NoError(t, err)
	res, err := s.PutSnapshot(context.Background(), "cam-001", t0.Add(time.Second), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Records)

	snap, ok := s.Snapshot("cam-001")
	require.True(t, ok)
	assert.Empty(t, snap.Spots)
	assert.Equal(t, 1, log.Len())
}

func TestPutSnapshot_DegradedDurability(t *testing.T) {
	log := history.NewMemoryLog()
	log.Err = errors.New("disk full")
	s := NewStore(log)

	res, err := s.PutSnapshot(context.Background(), "cam-001", t0, spots(model.StatusEmpty))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegradedDurability))
	assert.True(t, res.Degraded)

	snap, ok := s.Snapshot("cam-001")
	require.True(t, ok, "memory is updated even when history fails")
	assert.Len(t, snap.Spots, 1)
}

func TestPutSnapshot_ZeroTimestampUsesClock(t *testing.T) {
	s := NewStore(nil, WithClock(func() time.Time { return t0 }))
	_, err := s.PutSnapshot(context.Background(), "cam-001", time.Time{}, nil)
	require.NoError(t, err)
	snap, _ := s.Snapshot("cam-001")
	assert.Equal(t, t0, snap.Timestamp)

	_, err = s.PutSnapshot(context.Background(), "", t0, nil)
	assert.Error(t, err)
}

func TestAllSnapshots_DeepCopySorted(t *testing.T) {
	s := NewStore(nil)
	in := spots(model.StatusEmpty)
	in[0].Lat = model.Float(40.8)
	_, _ = s.PutSnapshot(context.Background(), "cam-b", t0, in)
	_, _ = s.PutSnapshot(context.Background(), "cam-a", t0, spots(model.StatusOccupied))

	*in[0].Lat = 0
	all := s.AllSnapshots()
	require.Len(t, all, 2)
	assert.Equal(t, "cam-a", all[0].CameraID)
	assert.Equal(t, 40.8, *all[1].Spots[0].Lat)

	all[1].Spots[0].Status = model.StatusOccupied
	*all[1].Spots[0].Lat = 1
	again, _ := s.Snapshot("cam-b")
	assert.Equal(t, model.StatusEmpty, again.Spots[0].Status)
	assert.Equal(t, 40.8, *again.Spots[0].Lat)
}

func TestPutSnapshot_PublishesEvent(t *testing.T) {
	bus := eventbus.NewTyped[SnapshotUpdated]()
	ch := bus.Subscribe()
	s := NewStore(nil, WithEvents(bus))
	_, err := s.PutSnapshot(context.Background(), "cam-001", t0, spots(model.StatusEmpty))
	require.NoError(t, err)
	select {
	case ev := <-ch:
		assert.Equal(t, "cam-001", ev.Snapshot.CameraID)
		assert.False(t, ev.Degraded)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestPutSnapshot_ConcurrentCameras(t *testing.T) {
	log := history.NewMemoryLog()
	s := NewStore(log)
	var wg sync.WaitGroup
	for c := 0; c < 10; c++ {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(c, i int) {
				defer wg.Done()
				n := i%3 + 1
				_, err := s.PutSnapshot(context.Background(), fmt.Sprintf("cam-%03d", c), t0.Add(time.Duration(i)*time.Second), make([]model.Spot, n))
				assert.NoError(t, err)
			}(c, i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, snap := range s.AllSnapshots() {
				for _, sp := range snap.Spots {
					assert.Equal(t, snap.CameraID, sp.CameraID)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, s.Len())
}

func TestRestore_LatestIngestionPerCamera(t *testing.T) {
	recs := []model.HistoryRecord{
		{Timestamp: t0, CameraID: "cam-001", SpotIndex: 0, Status: model.StatusEmpty},
		{Timestamp: t0, CameraID: "cam-001", SpotIndex: 1, Status: model.StatusEmpty},
		{Timestamp: t0.Add(time.Minute), CameraID: "cam-001", SpotIndex: 0, Status: model.StatusOccupied},
		{Timestamp: t0.Add(time.Minute), CameraID: "cam-001", SpotIndex: 0, Status: model.StatusEmpty, Lat: model.Float(1)},
		{Timestamp: t0, CameraID: "cam-002", SpotIndex: 3, Status: model.StatusOccupied},
	}
	s := NewStore(nil)
	assert.Equal(t, 2, s.Restore(recs))

	snap, ok := s.Snapshot("cam-001")
	require.True(t, ok)
	require.Len(t, snap.Spots, 1)
	assert.Equal(t, model.StatusEmpty, snap.Spots[0].Status)
	assert.Equal(t, 1.0, *snap.Spots[0].Lat)

	_, err := s.PutSnapshot(context.Background(), "cam-002", t0.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Restore(recs[4:]))
}

func TestRestore_ZeroSpotIngestionLeavesNoTrace(t *testing.T) {
	log := history.NewMemoryLog()
	live := NewStore(log)
	ctx := context.Background()
	_, err := live.PutSnapshot(ctx, "cam-001", t0, spots(model.StatusEmpty))
	require.NoError(t, err)
	_, err = live.PutSnapshot(ctx, "cam-001", t0.Add(time.Minute), nil)
	require.NoError(t, err)

	recs, err := log.Query(ctx, history.Query{})
	require.NoError(t, err)
	restored := NewStore(nil)
	require.Equal(t, 1, restored.Restore(recs))

	// The log holds no rows for the empty ingestion, so replay stops at the
	// last non-empty one.
	snap, ok := restored.Snapshot("cam-001")
	require.True(t, ok)
	assert.Equal(t, t0, snap.Timestamp)
	assert.Len(t, snap.Spots, 1)
}
