package prediction

import (
	"errors"
	"math"
	"time"
)

// ErrModelUnavailable is returned when a model artifact is missing or
// malformed. It is a configuration error and aborts startup.
var ErrModelUnavailable = errors.New("prediction model unavailable")

// Features are the canonical model inputs.
type Features struct {
	// DayOfWeek is 0 for Monday through 6 for Sunday.
	DayOfWeek int
	// MinuteOfDay is in [0, 1439].
	MinuteOfDay int
}

// FeaturesAt extracts model features from t in t's own location.
func FeaturesAt(t time.Time) Features {
	return Features{
		DayOfWeek:   (int(t.Weekday()) + 6) % 7,
		MinuteOfDay: t.Hour()*60 + t.Minute(),
	}
}

// Weekend reports whether the features fall on Saturday or Sunday.
func (f Features) Weekend() bool { return f.DayOfWeek >= 5 }

// Hour returns the hour of day in [0, 23].
func (f Features) Hour() int { return f.MinuteOfDay / 60 }

// Model estimates the probability that at least one spot is empty.
type Model interface {
	Name() string
	ProbabilityAnyEmpty(f Features) float64
}

// WaitEstimator is implemented by models carrying their own expected wait
// table. Models without it get a wait derived from their probability curve.
type WaitEstimator interface {
	ExpectedWaitMinutes(f Features) float64
}

func clamp01(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
