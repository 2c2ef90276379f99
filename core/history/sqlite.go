package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/parkcast/core/model"
)

// SQLiteLog persists records to a SQLite database.
type SQLiteLog struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteLog opens or creates the database at path and ensures the schema.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS spot_history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER NOT NULL,
        camera_id TEXT NOT NULL,
        spot_index INTEGER NOT NULL,
        status TEXT NOT NULL,
        lat REAL,
        lng REAL
    );
    CREATE INDEX IF NOT EXISTS spot_history_camera_ts ON spot_history (camera_id, ts);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteLog{db: db}, nil
}

// Append inserts the batch in one transaction.
func (s *SQLiteLog) Append(ctx context.Context, recs []model.HistoryRecord) error {
	if len(recs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO spot_history (ts, camera_id, spot_index, status, lat, lng) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.Timestamp.UnixNano(), r.CameraID, r.SpotIndex,
			string(r.Status), nullFloat(r.Lat), nullFloat(r.Lng)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query returns records matching q ordered by timestamp.
func (s *SQLiteLog) Query(ctx context.Context, q Query) ([]model.HistoryRecord, error) {
	var args []any
	query := `SELECT ts, camera_id, spot_index, status, lat, lng FROM spot_history WHERE 1=1`
	if q.CameraID != "" {
		query += ` AND camera_id = ?`
		args = append(args, q.CameraID)
	}
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	query += ` ORDER BY ts, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.HistoryRecord
	for rows.Next() {
		var (
			ts       int64
			r        model.HistoryRecord
			status   string
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&ts, &r.CameraID, &r.SpotIndex, &status, &lat, &lng); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		r.Status = model.Status(status)
		if !r.Status.Valid() {
			return nil, fmt.Errorf("spot_history row %s-%d: unknown status %q", r.CameraID, r.SpotIndex, status)
		}
		r.Lat = fromNull(lat)
		r.Lng = fromNull(lng)
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteLog) Close() error { return s.db.Close() }

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
