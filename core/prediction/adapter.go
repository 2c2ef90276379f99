package prediction

import (
	"time"

	"github.com/kilianp07/parkcast/core/model"
)

const (
	DefaultMaxWaitMinutes   = 60
	DefaultTargetConfidence = 0.8
)

// Options tune the Adapter. Zero values select the defaults.
type Options struct {
	// MaxWaitMinutes caps the expected-wait search.
	MaxWaitMinutes int `json:"max_wait_minutes"`
	// TargetConfidence is the probability the search must reach.
	TargetConfidence float64 `json:"target_confidence"`
	// Location is the timezone features are computed in. Defaults to
	// time.Local.
	Location *time.Location `json:"-"`
}

// Adapter exposes any Model through one stable Predict call.
type Adapter struct {
	model    Model
	maxWait  int
	target   float64
	location *time.Location
}

// NewAdapter wraps m with the given options.
func NewAdapter(m Model, opts Options) *Adapter {
	a := &Adapter{model: m, maxWait: opts.MaxWaitMinutes, target: opts.TargetConfidence, location: opts.Location}
	if a.maxWait <= 0 {
		a.maxWait = DefaultMaxWaitMinutes
	}
	if a.target <= 0 || a.target > 1 {
		a.target = DefaultTargetConfidence
	}
	if a.location == nil {
		a.location = time.Local
	}
	return a
}

// ModelName returns the wrapped backend name.
func (a *Adapter) ModelName() string { return a.model.Name() }

// Probability returns the clamped probability that a spot is empty at t.
func (a *Adapter) Probability(t time.Time) float64 {
	return clamp01(a.model.ProbabilityAnyEmpty(FeaturesAt(t.In(a.location))))
}

// Predict forecasts availability at arrival. anyEmptyNow short-circuits the
// expected wait to zero whatever the backend.
func (a *Adapter) Predict(arrival time.Time, anyEmptyNow bool) model.PredictionResult {
	res := model.PredictionResult{ProbabilityAnyEmpty: a.Probability(arrival)}
	switch {
	case anyEmptyNow:
		res.ExpectedWaitMinutes = 0
	default:
		if we, ok := a.model.(WaitEstimator); ok {
			res.ExpectedWaitMinutes = we.ExpectedWaitMinutes(FeaturesAt(arrival.In(a.location)))
		} else {
			res.ExpectedWaitMinutes = float64(a.searchWait(arrival))
		}
	}
	if res.ExpectedWaitMinutes < 0 {
		res.ExpectedWaitMinutes = 0
	}
	return res
}

// searchWait returns the smallest minute offset whose probability reaches the
// target, or the cap when none does.
func (a *Adapter) searchWait(from time.Time) int {
	for w := 0; w <= a.maxWait; w++ {
		if a.Probability(from.Add(time.Duration(w)*time.Minute)) >= a.target {
			return w
		}
	}
	return a.maxWait
}
