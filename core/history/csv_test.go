package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/parkcast/core/model"
)

func batch(camera string, ts time.Time, n int) []model.HistoryRecord {
	recs := make([]model.HistoryRecord, n)
	for i := range recs {
		recs[i] = model.HistoryRecord{Timestamp: ts, CameraID: camera, SpotIndex: i, Status: model.StatusOccupied}
	}
	return recs
}

func TestCSVLog_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	ts := time.Date(2025, 12, 1, 21, 30, 45, 0, time.UTC)

	l, err := NewCSVLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), batch("cam-001", ts, 1)))

	l, err = NewCSVLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), batch("cam-001", ts.Add(time.Minute), 1)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,camera_id,spot_index,status,lat,lng", lines[0])
	assert.Equal(t, "2025-12-01T21:30:45Z,cam-001,0,occupied,,", lines[1])
}

func TestCSVLog_QueryTolerantOfEmptyCoordinates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	l, err := NewCSVLog(path)
	require.NoError(t, err)
	ts := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)
	recs := []model.HistoryRecord{
		{Timestamp: ts, CameraID: "cam-001", SpotIndex: 0, Status: model.StatusEmpty, Lat: model.Float(40.808), Lng: model.Float(-73.962)},
		{Timestamp: ts, CameraID: "cam-001", SpotIndex: 1, Status: model.StatusOccupied},
	}
	require.NoError(t, l.Append(context.Background(), recs))
	require.NoError(t, l.Append(context.Background(), batch("cam-002", ts.Add(time.Hour), 2)))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("garbage,row\n2025-12-01T10:00:00Z,cam-003,0,parked,,\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	all, err := l.Query(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 40.808, *all[0].Lat)
	assert.Nil(t, all[1].Lat)
	assert.Nil(t, all[1].Lng)

	cam1, err := l.Query(context.Background(), Query{CameraID: "cam-001"})
	require.NoError(t, err)
	assert.Len(t, cam1, 2)

	late, err := l.Query(context.Background(), Query{Start: ts.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, late, 2)
	assert.Equal(t, "cam-002", late[0].CameraID)
}

func TestCSVLog_ConcurrentBatchesDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	l, err := NewCSVLog(path)
	require.NoError(t, err)
	ts := time.Now().UTC()

	var wg sync.WaitGroup
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			assert.NoError(t, l.Append(context.Background(), batch(fmt.Sprintf("cam-%03d", c), ts, 25)))
		}(c)
	}
	wg.Wait()

	all, err := l.Query(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, all, 200)
	for i := 0; i < len(all); i += 25 {
		for j := 0; j < 25; j++ {
			assert.Equal(t, all[i].CameraID, all[i+j].CameraID)
			assert.Equal(t, j, all[i+j].SpotIndex)
		}
	}
}

func TestCSVLog_EmptyBatchIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	l, err := NewCSVLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), nil))
	all, err := l.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCSVLog_QueryHonoursCancelledContext(t *testing.T) {
	l, err := NewCSVLog(filepath.Join(t.TempDir(), "history.csv"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Query(ctx, Query{})
	assert.ErrorIs(t, err, context.Canceled)
}
