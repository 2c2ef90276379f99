package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/parkcast/core/model"
)

// JSONLLog stores one JSON record per line with size based rotation.
type JSONLLog struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewJSONLLog creates a log rotating at maxSizeMB, keeping maxBackups files
// for at most maxAgeDays. Zero values use lumberjack's defaults.
func NewJSONLLog(path string, maxSizeMB, maxBackups, maxAgeDays int) (*JSONLLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &JSONLLog{logger: lj, path: path}, nil
}

// Append encodes the batch into one buffer and hands it to the rotating
// writer in a single Write, so a rotation never splits a batch.
func (l *JSONLLog) Append(ctx context.Context, recs []model.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.logger.Write(buf.Bytes())
	return err
}

// Query reads the active file and every rotated backup.
func (l *JSONLLog) Query(ctx context.Context, q Query) ([]model.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ext := filepath.Ext(l.path)
	prefix := l.path[:len(l.path)-len(ext)]
	files, err := filepath.Glob(prefix + "*" + ext)
	if err != nil {
		return nil, err
	}
	var res []model.HistoryRecord
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var r model.HistoryRecord
			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil || !r.Status.Valid() {
				continue
			}
			if q.Match(r) {
				res = append(res, r)
			}
		}
		_ = f.Close()
	}
	sortByTime(res)
	return res, nil
}

func (l *JSONLLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logger.Close()
}
