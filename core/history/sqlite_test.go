package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/parkcast/core/model"
)

func TestSQLiteLog_PersistQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	l, err := NewSQLiteLog(path)
	require.NoError(t, err)

	ts := time.Date(2025, 12, 1, 9, 0, 0, 123, time.UTC)
	recs := []model.HistoryRecord{
		{Timestamp: ts, CameraID: "cam-001", SpotIndex: 0, Status: model.StatusEmpty, Lat: model.Float(40.808), Lng: model.Float(-73.962)},
		{Timestamp: ts, CameraID: "cam-001", SpotIndex: 1, Status: model.StatusOccupied},
	}
	require.NoError(t, l.Append(context.Background(), recs))
	require.NoError(t, l.Append(context.Background(), batch("cam-002", ts.Add(time.Minute), 2)))
	require.NoError(t, l.Close())

	l, err = NewSQLiteLog(path)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	out, err := l.Query(context.Background(), Query{CameraID: "cam-001"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, ts.Equal(out[0].Timestamp))
	assert.Equal(t, model.StatusEmpty, out[0].Status)
	assert.Equal(t, -73.962, *out[0].Lng)
	assert.Nil(t, out[1].Lat)

	window, err := l.Query(context.Background(), Query{Start: ts.Add(time.Second), End: ts.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, window, 2)
	assert.Equal(t, "cam-002", window[0].CameraID)
}

func TestSQLiteLog_QueryRejectsUnknownStatus(t *testing.T) {
	l, err := NewSQLiteLog(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	_, err = l.db.Exec(`INSERT INTO spot_history (ts, camera_id, spot_index, status) VALUES (?, ?, ?, ?)`,
		time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC).UnixNano(), "cam-001", 0, "parked")
	require.NoError(t, err)

	_, err = l.Query(context.Background(), Query{})
	assert.ErrorContains(t, err, `unknown status "parked"`)
}
