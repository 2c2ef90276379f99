package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/parkcast/core/factory"
	"github.com/kilianp07/parkcast/core/prediction"
)

// PredictionConfig selects the prediction backend and tunes the wait search.
type PredictionConfig struct {
	// Type is "table" or "classifier".
	Type             string         `json:"type"`
	Conf             map[string]any `json:"conf"`
	MaxWaitMinutes   int            `json:"max_wait_minutes"`
	TargetConfidence float64        `json:"target_confidence"`
	// Timezone is the IANA zone prediction features are computed in.
	Timezone string `json:"timezone"`
}

// SetDefaults applies sane defaults.
func (c *PredictionConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "table"
	}
	if c.MaxWaitMinutes == 0 {
		c.MaxWaitMinutes = prediction.DefaultMaxWaitMinutes
	}
	if c.TargetConfidence == 0 {
		c.TargetConfidence = prediction.DefaultTargetConfidence
	}
}

// Validate checks ranges and the timezone.
func (c PredictionConfig) Validate() error {
	if c.MaxWaitMinutes < 0 {
		return fmt.Errorf("prediction.max_wait_minutes must be >= 0")
	}
	if c.TargetConfidence < 0 || c.TargetConfidence > 1 {
		return fmt.Errorf("prediction.target_confidence must be within [0,1]")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Module returns the factory description of the backend.
func (c PredictionConfig) Module() factory.ModuleConfig {
	return factory.ModuleConfig{Type: c.Type, Conf: c.Conf}
}

// Location resolves Timezone. Empty means time.Local.
func (c PredictionConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("prediction.timezone: %w", err)
	}
	return loc, nil
}

// Options converts the section into adapter options.
func (c PredictionConfig) Options() (prediction.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return prediction.Options{}, err
	}
	return prediction.Options{MaxWaitMinutes: c.MaxWaitMinutes, TargetConfidence: c.TargetConfidence, Location: loc}, nil
}
