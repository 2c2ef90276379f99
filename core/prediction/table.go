package prediction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DayType groups days sharing the same occupancy pattern.
type DayType string

const (
	Weekday DayType = "weekday"
	Weekend DayType = "weekend"
)

const (
	// FallbackProbability is used when the table has no entry for an hour.
	FallbackProbability = 0.5
	// FallbackWaitMinutes is used when the wait table has no entry for an hour.
	FallbackWaitMinutes = 10.0
)

// HourTable maps a day type to per-hour values.
type HourTable map[DayType]map[int]float64

// TableModel is the static lookup backend.
type TableModel struct {
	ProbabilityEmpty HourTable `json:"probability_empty" yaml:"probability_empty"`
	WaitMinutes      HourTable `json:"expected_wait_minutes" yaml:"expected_wait_minutes"`
}

// Name implements Model.
func (TableModel) Name() string { return "table" }

// ProbabilityAnyEmpty implements Model.
func (m TableModel) ProbabilityAnyEmpty(f Features) float64 {
	if v, ok := m.ProbabilityEmpty.lookup(f); ok {
		return clamp01(v)
	}
	return FallbackProbability
}

// ExpectedWaitMinutes implements WaitEstimator.
func (m TableModel) ExpectedWaitMinutes(f Features) float64 {
	if v, ok := m.WaitMinutes.lookup(f); ok && v >= 0 {
		return v
	}
	return FallbackWaitMinutes
}

func (t HourTable) lookup(f Features) (float64, bool) {
	day := Weekday
	if f.Weekend() {
		day = Weekend
	}
	hours, ok := t[day]
	if !ok {
		return 0, false
	}
	v, ok := hours[f.Hour()]
	return v, ok
}

// LoadTable reads a table artifact from a YAML or JSON file. Hours missing
// from the file fall back at lookup time; unknown day types and hours out of
// range are rejected.
func LoadTable(path string) (TableModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TableModel{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	var m TableModel
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".json":
		err = json.Unmarshal(data, &m)
	default:
		return TableModel{}, fmt.Errorf("%w: unsupported table format %s", ErrModelUnavailable, filepath.Ext(path))
	}
	if err != nil {
		return TableModel{}, fmt.Errorf("%w: decode %s: %v", ErrModelUnavailable, path, err)
	}
	if err := m.validate(); err != nil {
		return TableModel{}, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, path, err)
	}
	return m, nil
}

func (m TableModel) validate() error {
	if len(m.ProbabilityEmpty) == 0 {
		return fmt.Errorf("probability_empty is empty")
	}
	for name, t := range map[string]HourTable{"probability_empty": m.ProbabilityEmpty, "expected_wait_minutes": m.WaitMinutes} {
		for day, hours := range t {
			if day != Weekday && day != Weekend {
				return fmt.Errorf("%s: unknown day type %q", name, day)
			}
			for h, v := range hours {
				if h < 0 || h > 23 {
					return fmt.Errorf("%s.%s: hour %d out of range", name, day, h)
				}
				if v < 0 {
					return fmt.Errorf("%s.%s: negative value at hour %d", name, day, h)
				}
			}
		}
	}
	return nil
}

// DefaultTable returns the built-in campus tables.
func DefaultTable() TableModel {
	return TableModel{
		ProbabilityEmpty: HourTable{
			Weekday: hourly(
				0.96, 0.97, 0.98, 0.98, 0.97, 0.95,
				0.6, 0.5,
				0.3, 0.2, 0.25, 0.3,
				0.35, 0.3, 0.3, 0.35,
				0.45, 0.55,
				0.65, 0.75, 0.85, 0.9, 0.93, 0.95,
			),
			Weekend: hourly(
				0.97, 0.98, 0.99, 0.99, 0.98, 0.97,
				0.9, 0.88, 0.85, 0.8, 0.78, 0.75,
				0.7, 0.7, 0.68, 0.7,
				0.75, 0.8,
				0.85, 0.9, 0.93, 0.95, 0.97, 0.98,
			),
		},
		WaitMinutes: HourTable{
			Weekday: hourly(
				2, 2, 2, 2, 2, 3,
				8, 10,
				18, 20, 18, 16,
				15, 17, 18, 16,
				12, 10,
				8, 6, 4, 3, 2, 2,
			),
			Weekend: hourly(
				2, 2, 2, 2, 2, 2,
				3, 4, 5, 6, 7, 7,
				8, 8, 8, 7,
				6, 5,
				4, 3, 3, 2, 2, 2,
			),
		},
	}
}

func hourly(values ...float64) map[int]float64 {
	out := make(map[int]float64, len(values))
	for h, v := range values {
		out[h] = v
	}
	return out
}
