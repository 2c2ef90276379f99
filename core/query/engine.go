// Package query ranks the current spot state for a requester and attaches a
// single availability forecast to the answer.
package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/kilianp07/parkcast/core/geo"
	"github.com/kilianp07/parkcast/core/logger"
	coremetrics "github.com/kilianp07/parkcast/core/metrics"
	"github.com/kilianp07/parkcast/core/model"
)

// ErrInvalidArrivalTime is returned by ParseArrivalTime. Queries never fail
// on it; callers fall back to the default arrival time.
var ErrInvalidArrivalTime = errors.New("invalid arrival time")

// SnapshotReader provides a consistent copy of every camera snapshot.
type SnapshotReader interface {
	AllSnapshots() []model.CameraSnapshot
}

// Predictor forecasts availability for one arrival time.
type Predictor interface {
	Predict(arrival time.Time, anyEmptyNow bool) model.PredictionResult
}

// Engine evaluates queries. It never mutates the store.
type Engine struct {
	store     SnapshotReader
	predictor Predictor
	sink      coremetrics.MetricsSink
	log       logger.Logger
	now       func() time.Time
	offset    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records query evaluations on sink when it supports them.
func WithMetrics(sink coremetrics.MetricsSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithArrivalOffset changes the arrival default applied when a query has none.
func WithArrivalOffset(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.offset = d
		}
	}
}

// NewEngine builds an Engine over store and predictor.
func NewEngine(store SnapshotReader, predictor Predictor, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		predictor: predictor,
		sink:      coremetrics.NopSink{},
		log:       log,
		now:       time.Now,
		offset:    model.DefaultArrivalOffset,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ResolveArrival returns the arrival instant used for prediction: the
// requested time clamped to now, or now plus the default offset.
func (e *Engine) ResolveArrival(requested *time.Time, now time.Time) time.Time {
	return ResolveArrival(requested, now, e.offset)
}

// ResolveArrival clamps requested to now, or returns now plus offset when no
// time was requested.
func ResolveArrival(requested *time.Time, now time.Time, offset time.Duration) time.Time {
	if requested == nil || requested.IsZero() {
		return now.Add(offset)
	}
	if requested.Before(now) {
		return now
	}
	return *requested
}

// Query ranks every known spot for q. An empty store yields an empty but
// complete response.
func (e *Engine) Query(_ context.Context, q model.Query) model.QueryResponse {
	start := time.Now()
	now := e.now()
	arrival := e.ResolveArrival(q.ArrivalTime, now)

	var origin *orb.Point
	if q.HasLocation() {
		origin = geo.PointOf(q.Lat, q.Lng)
	}

	spots := make([]model.RankedSpot, 0)
	summary := model.Summary{}
	for _, snap := range e.store.AllSnapshots() {
		for _, sp := range snap.Spots {
			var dist *float64
			if origin != nil {
				if d, ok := geo.DistanceMeters(origin, geo.PointOf(sp.Lat, sp.Lng)); ok {
					if q.RadiusMeters != nil && d > *q.RadiusMeters {
						continue
					}
					dist = model.Float(d)
				}
			}
			spots = append(spots, model.RankedSpot{
				SpotID:         sp.Key().String(),
				CameraID:       snap.CameraID,
				SpotIndex:      sp.SpotIndex,
				Status:         sp.Status,
				Lat:            sp.Lat,
				Lng:            sp.Lng,
				LastUpdated:    snap.Timestamp,
				DistanceMeters: dist,
			})
			summary.TotalSpots++
			if sp.Status == model.StatusEmpty {
				summary.EmptySpots++
			}
		}
	}

	pred := e.predictor.Predict(arrival, summary.EmptySpots > 0)
	for i := range spots {
		spots[i].PredictedAvailability = model.Float(pred.ProbabilityAnyEmpty)
		spots[i].EstimatedWaitMinutes = model.Float(pred.ExpectedWaitMinutes)
	}
	sort.SliceStable(spots, func(i, j int) bool { return distanceKey(spots[i]) < distanceKey(spots[j]) })

	resp := model.QueryResponse{
		Timestamp: now,
		Query:     echo(q),
		Summary:   summary,
		Prediction: model.PredictionView{
			ArrivalTimestamp:         arrival,
			AvgPredictedAvailability: pred.ProbabilityAnyEmpty,
			ExpectedWaitMinutes:      pred.ExpectedWaitMinutes,
		},
		Spots: spots,
	}
	if rec, ok := e.sink.(coremetrics.QueryRecorder); ok {
		_ = rec.RecordQuery(coremetrics.QueryEvent{
			Results:             summary.TotalSpots,
			EmptySpots:          summary.EmptySpots,
			HasLocation:         origin != nil,
			ProbabilityAnyEmpty: pred.ProbabilityAnyEmpty,
			ExpectedWaitMinutes: pred.ExpectedWaitMinutes,
			Duration:            time.Since(start),
			Time:                now,
		})
	}
	e.log.Debugw("query evaluated", map[string]any{
		"results":     summary.TotalSpots,
		"empty":       summary.EmptySpots,
		"arrival":     arrival.Format(time.RFC3339),
		"probability": pred.ProbabilityAnyEmpty,
	})
	return resp
}

func distanceKey(s model.RankedSpot) float64 {
	if s.DistanceMeters == nil {
		return math.Inf(1)
	}
	return *s.DistanceMeters
}

func echo(q model.Query) model.QueryEcho {
	out := model.QueryEcho{Lat: q.Lat, Lng: q.Lng, RadiusMeters: q.RadiusMeters, Radius: q.RadiusMeters}
	if q.ArrivalTime != nil {
		s := q.ArrivalTime.Format(time.RFC3339)
		out.ArrivalTime = &s
	}
	return out
}

var arrivalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseArrivalTime parses an ISO-8601 arrival time. Values without a zone
// are read in loc. The empty string yields a nil time and no error.
func ParseArrivalTime(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range arrivalLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidArrivalTime, s)
}
