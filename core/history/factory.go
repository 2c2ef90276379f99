package history

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/parkcast/core/factory"
)

var logRegistry = factory.NewRegistry[Log]()

type fileConf struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

func init() {
	_ = RegisterLog("memory", func(map[string]any) (Log, error) {
		return NewMemoryLog(), nil
	})
	_ = RegisterLog("csv", func(conf map[string]any) (Log, error) {
		var c fileConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "spot_history.csv"
		}
		return NewCSVLog(c.Path)
	})
	_ = RegisterLog("jsonl", func(conf map[string]any) (Log, error) {
		var c fileConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "spot_history.jsonl"
		}
		return NewJSONLLog(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	_ = RegisterLog("sqlite", func(conf map[string]any) (Log, error) {
		var c fileConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "spot_history.db"
		}
		return NewSQLiteLog(c.Path)
	})
	_ = RegisterLog("postgres", func(conf map[string]any) (Log, error) {
		var c struct {
			DSN            string `json:"dsn"`
			ConnectTimeout int    `json:"connect_timeout_seconds"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.DSN == "" {
			return nil, fmt.Errorf("postgres history requires conf.dsn")
		}
		if c.ConnectTimeout <= 0 {
			c.ConnectTimeout = 5
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.ConnectTimeout)*time.Second)
		defer cancel()
		return NewPostgresLog(ctx, c.DSN)
	})
}

// RegisterLog adds a history backend factory identified by name.
func RegisterLog(name string, f factory.Factory[Log]) error {
	return logRegistry.Register(name, f)
}

// NewLog builds the backend described by cfg. An empty type selects csv.
func NewLog(cfg factory.ModuleConfig) (Log, error) {
	if cfg.Type == "" {
		cfg.Type = "csv"
	}
	l, err := logRegistry.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("history log %q: %w", cfg.Type, err)
	}
	return l, nil
}
