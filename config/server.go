package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/parkcast/jobs/occupancy"
)

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Addr string `json:"addr"`
	// AllowedOrigins lists CORS origins. Empty or "*" allows all.
	AllowedOrigins []string `json:"allowed_origins"`
	// ArrivalOffsetMinutes is added to now when a query has no arrival time.
	ArrivalOffsetMinutes int `json:"arrival_offset_minutes"`
	// HistoryToken protects /api/history with a bearer token when set.
	HistoryToken        string `json:"history_token"`
	ShutdownTimeoutSecs int    `json:"shutdown_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ArrivalOffsetMinutes == 0 {
		c.ArrivalOffsetMinutes = 5
	}
	if c.ShutdownTimeoutSecs <= 0 {
		c.ShutdownTimeoutSecs = 5
	}
}

// Validate checks mandatory fields.
func (c ServerConfig) Validate() error {
	if c.ArrivalOffsetMinutes < 0 {
		return fmt.Errorf("server.arrival_offset_minutes must be >= 0")
	}
	return nil
}

// ArrivalOffset returns the default arrival offset.
func (c ServerConfig) ArrivalOffset() time.Duration {
	return time.Duration(c.ArrivalOffsetMinutes) * time.Minute
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecs) * time.Second
}

// CalibrationConfig points at the spot calibration table.
type CalibrationConfig struct {
	// Path is a .yaml, .json, .geojson or .csv file. Empty disables
	// coordinates.
	Path string `json:"path"`
}

// ReportConfig schedules the periodic occupancy report.
type ReportConfig struct {
	Disabled bool   `json:"disabled"`
	Schedule string `json:"schedule"`
}

// SetDefaults applies sane defaults.
func (c *ReportConfig) SetDefaults() {
	if c.Schedule == "" {
		c.Schedule = occupancy.DefaultSchedule
	}
}

// Validate checks the cron expression.
func (c ReportConfig) Validate() error {
	if c.Disabled {
		return nil
	}
	if err := occupancy.ValidateSchedule(c.Schedule); err != nil {
		return fmt.Errorf("report.schedule: %w", err)
	}
	return nil
}
