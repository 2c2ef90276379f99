package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/kilianp07/parkcast/core/model"
)

var csvHeader = []string{"timestamp", "camera_id", "spot_index", "status", "lat", "lng"}

// CSVLog appends records to a CSV file with the header
// timestamp,camera_id,spot_index,status,lat,lng. The header is written once,
// when the file is created or empty.
type CSVLog struct {
	path string
	mu   sync.Mutex
}

// NewCSVLog opens or creates the file at path.
func NewCSVLog(path string) (*CSVLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(csvHeader); err != nil {
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
	}
	return &CSVLog{path: path}, nil
}

// Append writes the batch under the log's writer lock and syncs the file.
func (l *CSVLog) Append(ctx context.Context, recs []model.HistoryRecord) error {
	if len(recs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	for _, r := range recs {
		if err := w.Write(encodeCSV(r)); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Query scans the whole file. Rows that fail to parse are skipped.
func (l *CSVLog) Query(ctx context.Context, q Query) ([]model.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var res []model.HistoryRecord
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return nil, err
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == csvHeader[0] {
				continue
			}
		}
		rec, err := decodeCSV(row)
		if err != nil {
			continue
		}
		if q.Match(rec) {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (l *CSVLog) Close() error { return nil }

func encodeCSV(r model.HistoryRecord) []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.CameraID,
		strconv.Itoa(r.SpotIndex),
		string(r.Status),
		formatCoord(r.Lat),
		formatCoord(r.Lng),
	}
}

func decodeCSV(row []string) (model.HistoryRecord, error) {
	if len(row) < 4 {
		return model.HistoryRecord{}, fmt.Errorf("short row: %d fields", len(row))
	}
	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		return model.HistoryRecord{}, err
	}
	idx, err := strconv.Atoi(row[2])
	if err != nil {
		return model.HistoryRecord{}, err
	}
	st, err := model.ParseStatus(row[3])
	if err != nil {
		return model.HistoryRecord{}, err
	}
	rec := model.HistoryRecord{Timestamp: ts, CameraID: row[1], SpotIndex: idx, Status: st}
	if len(row) > 4 {
		rec.Lat = parseCoord(row[4])
	}
	if len(row) > 5 {
		rec.Lng = parseCoord(row[5])
	}
	return rec, nil
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// parseCoord tolerates empty and invalid fields, returning nil.
func parseCoord(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
