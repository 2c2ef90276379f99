package model

import "time"

// DefaultArrivalOffset is applied when a query carries no arrival time.
const DefaultArrivalOffset = 5 * time.Minute

// Query describes a ranked availability request. Every field is optional.
type Query struct {
	Lat          *float64
	Lng          *float64
	RadiusMeters *float64
	ArrivalTime  *time.Time
}

// HasLocation reports whether both requester coordinates are set.
func (q Query) HasLocation() bool { return q.Lat != nil && q.Lng != nil }

// PredictionResult is the forecast for a single arrival time.
type PredictionResult struct {
	ProbabilityAnyEmpty float64 `json:"probability_any_empty"`
	ExpectedWaitMinutes float64 `json:"expected_wait_minutes"`
}

// RankedSpot is a response-only projection of a Spot.
type RankedSpot struct {
	SpotID                string    `json:"spot_id"`
	CameraID              string    `json:"source_camera_id"`
	SpotIndex             int       `json:"spot_index"`
	Status                Status    `json:"status"`
	Lat                   *float64  `json:"lat"`
	Lng                   *float64  `json:"lng"`
	LastUpdated           time.Time `json:"last_updated"`
	DistanceMeters        *float64  `json:"distance_meters"`
	PredictedAvailability *float64  `json:"predicted_availability"`
	EstimatedWaitMinutes  *float64  `json:"estimated_wait_minutes,omitempty"`
}

// QueryEcho mirrors the resolved request in responses. Radius repeats
// RadiusMeters for clients reading the short key.
type QueryEcho struct {
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	RadiusMeters *float64 `json:"radius_meters"`
	Radius       *float64 `json:"radius"`
	ArrivalTime  *string  `json:"arrival_time,omitempty"`
}

// Summary counts spots over the filtered result set.
type Summary struct {
	TotalSpots int `json:"total_spots"`
	EmptySpots int `json:"empty_spots"`
}

// PredictionView is the prediction block of a query response.
type PredictionView struct {
	ArrivalTimestamp         time.Time `json:"arrival_timestamp"`
	AvgPredictedAvailability float64   `json:"avg_predicted_availability"`
	ExpectedWaitMinutes      float64   `json:"expected_wait_minutes"`
}

// QueryResponse is the complete answer to a Query.
type QueryResponse struct {
	Timestamp  time.Time      `json:"timestamp"`
	Query      QueryEcho      `json:"query"`
	Summary    Summary        `json:"summary"`
	Prediction PredictionView `json:"prediction"`
	Spots      []RankedSpot   `json:"spots"`
}
