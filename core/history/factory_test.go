package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/parkcast/core/factory"
)

func TestNewLog_Backends(t *testing.T) {
	dir := t.TempDir()
	cfgs := []factory.ModuleConfig{
		{Type: "memory"},
		{Type: "csv", Conf: map[string]any{"path": filepath.Join(dir, "h.csv")}},
		{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(dir, "h.jsonl"), "max_size_mb": "5"}},
		{Type: "sqlite", Conf: map[string]any{"path": filepath.Join(dir, "h.db")}},
	}
	for _, cfg := range cfgs {
		l, err := NewLog(cfg)
		require.NoError(t, err, cfg.Type)
		require.NoError(t, l.Append(context.Background(), batch("cam-001", time.Now(), 2)), cfg.Type)
		out, err := l.Query(context.Background(), Query{CameraID: "cam-001"})
		require.NoError(t, err, cfg.Type)
		assert.Len(t, out, 2, cfg.Type)
		require.NoError(t, l.Close())
	}
}

func TestNewLog_Errors(t *testing.T) {
	_, err := NewLog(factory.ModuleConfig{Type: "tape"})
	assert.Error(t, err)
	_, err = NewLog(factory.ModuleConfig{Type: "postgres"})
	assert.Error(t, err)
}

func TestMemoryLog_Err(t *testing.T) {
	l := NewMemoryLog()
	l.Err = errors.New("disk full")
	assert.Error(t, l.Append(context.Background(), batch("cam-001", time.Now(), 1)))
	assert.Equal(t, 0, l.Len())
}
