package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/parkcast/core/model"
)

const pgSchema = `CREATE TABLE IF NOT EXISTS spot_history (
    id BIGSERIAL PRIMARY KEY,
    ts TIMESTAMPTZ NOT NULL,
    camera_id TEXT NOT NULL,
    spot_index INTEGER NOT NULL,
    status TEXT NOT NULL,
    lat DOUBLE PRECISION,
    lng DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS spot_history_camera_ts ON spot_history (camera_id, ts);`

// PostgresLog stores records in PostgreSQL through a pgx pool.
type PostgresLog struct {
	mu   sync.Mutex
	pool *pgxpool.Pool
}

// NewPostgresLog connects to dsn, checks the connection and ensures the schema.
func NewPostgresLog(ctx context.Context, dsn string) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &PostgresLog{pool: pool}, nil
}

// Append copies the batch inside a single transaction.
func (p *PostgresLog) Append(ctx context.Context, recs []model.HistoryRecord) error {
	if len(recs) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"spot_history"},
			[]string{"ts", "camera_id", "spot_index", "status", "lat", "lng"},
			pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
				r := recs[i]
				return []any{r.Timestamp, r.CameraID, r.SpotIndex, string(r.Status), r.Lat, r.Lng}, nil
			}),
		)
		return err
	})
}

// Query returns records matching q ordered by timestamp.
func (p *PostgresLog) Query(ctx context.Context, q Query) ([]model.HistoryRecord, error) {
	var args []any
	query := `SELECT ts, camera_id, spot_index, status, lat, lng FROM spot_history WHERE 1=1`
	if q.CameraID != "" {
		args = append(args, q.CameraID)
		query += fmt.Sprintf(` AND camera_id = $%d`, len(args))
	}
	if !q.Start.IsZero() {
		args = append(args, q.Start)
		query += fmt.Sprintf(` AND ts >= $%d`, len(args))
	}
	if !q.End.IsZero() {
		args = append(args, q.End)
		query += fmt.Sprintf(` AND ts <= $%d`, len(args))
	}
	query += ` ORDER BY ts, id`
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.HistoryRecord
	for rows.Next() {
		var (
			r      model.HistoryRecord
			ts     time.Time
			status string
		)
		if err := rows.Scan(&ts, &r.CameraID, &r.SpotIndex, &status, &r.Lat, &r.Lng); err != nil {
			return nil, err
		}
		r.Timestamp = ts.UTC()
		r.Status = model.Status(status)
		if !r.Status.Valid() {
			return nil, fmt.Errorf("spot_history row %s-%d: unknown status %q", r.CameraID, r.SpotIndex, status)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (p *PostgresLog) Close() error {
	p.pool.Close()
	return nil
}
