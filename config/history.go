package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/parkcast/core/factory"
)

// HistoryConfig defines the spot history log and its rotation.
type HistoryConfig struct {
	// Type selects the backend: "memory", "csv", "jsonl", "sqlite" or
	// "postgres".
	Type string `json:"type"`
	// Conf carries backend settings such as path, max_size_mb, max_backups,
	// max_age_days or dsn.
	Conf map[string]any `json:"conf"`
	// RestoreOnStart rebuilds the snapshot store from the log at startup.
	RestoreOnStart bool `json:"restore_on_start"`
	// RestoreWindowHours limits the replay to recent records. Zero replays
	// everything.
	RestoreWindowHours int `json:"restore_window_hours"`
}

var historyTypes = map[string]bool{"memory": true, "csv": true, "jsonl": true, "sqlite": true, "postgres": true}

// SetDefaults applies sane defaults.
func (c *HistoryConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "csv"
	}
}

// Validate checks mandatory fields.
func (c HistoryConfig) Validate() error {
	if !historyTypes[c.Type] {
		return fmt.Errorf("unknown history backend %s", c.Type)
	}
	if c.Type == "postgres" {
		if dsn, _ := c.Conf["dsn"].(string); dsn == "" {
			return fmt.Errorf("history.conf.dsn is required for postgres")
		}
	}
	if c.RestoreWindowHours < 0 {
		return fmt.Errorf("history.restore_window_hours must be >= 0")
	}
	return nil
}

// Module returns the factory description of the backend.
func (c HistoryConfig) Module() factory.ModuleConfig {
	return factory.ModuleConfig{Type: c.Type, Conf: c.Conf}
}

// RestoreSince returns the start of the replay window relative to now.
func (c HistoryConfig) RestoreSince(now time.Time) time.Time {
	if c.RestoreWindowHours <= 0 {
		return time.Time{}
	}
	return now.Add(-time.Duration(c.RestoreWindowHours) * time.Hour)
}
