package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the occupancy state of a single parking spot.
type Status string

const (
	StatusEmpty    Status = "empty"
	StatusOccupied Status = "occupied"
)

// ParseStatus normalises an upstream label. Only "empty" and "occupied" are
// accepted, regardless of case or surrounding whitespace.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusEmpty:
		return StatusEmpty, nil
	case StatusOccupied:
		return StatusOccupied, nil
	}
	return "", fmt.Errorf("unknown spot status %q", s)
}

// Valid reports whether s is one of the enumerated values.
func (s Status) Valid() bool { return s == StatusEmpty || s == StatusOccupied }

// SpotKey identifies a spot for the lifetime of a deployment.
type SpotKey struct {
	CameraID  string
	SpotIndex int
}

func (k SpotKey) String() string { return fmt.Sprintf("%s-%d", k.CameraID, k.SpotIndex) }

// Spot is the latest known state of one parking space. Coordinates are nil
// when the spot has no calibration entry.
type Spot struct {
	CameraID  string   `json:"camera_id"`
	SpotIndex int      `json:"spot_index"`
	Status    Status   `json:"status"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
}

// Key returns the identity of the spot.
func (s Spot) Key() SpotKey { return SpotKey{CameraID: s.CameraID, SpotIndex: s.SpotIndex} }

// CameraSnapshot is the full spot state reported by one camera at one instant.
type CameraSnapshot struct {
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`
	Spots     []Spot    `json:"spots"`
}

// Clone returns a deep copy, coordinates included.
func (c CameraSnapshot) Clone() CameraSnapshot {
	out := CameraSnapshot{CameraID: c.CameraID, Timestamp: c.Timestamp}
	if c.Spots != nil {
		out.Spots = make([]Spot, len(c.Spots))
		for i, sp := range c.Spots {
			out.Spots[i] = sp
			out.Spots[i].Lat = cloneFloat(sp.Lat)
			out.Spots[i].Lng = cloneFloat(sp.Lng)
		}
	}
	return out
}

// EmptyCount returns the number of spots currently empty.
func (c CameraSnapshot) EmptyCount() int {
	n := 0
	for _, sp := range c.Spots {
		if sp.Status == StatusEmpty {
			n++
		}
	}
	return n
}

// HistoryRecord is one immutable fact about a spot at ingestion time.
type HistoryRecord struct {
	Timestamp time.Time `json:"timestamp"`
	CameraID  string    `json:"camera_id"`
	SpotIndex int       `json:"spot_index"`
	Status    Status    `json:"status"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
}

// RecordsFor converts a snapshot into one history record per spot.
func RecordsFor(snap CameraSnapshot) []HistoryRecord {
	recs := make([]HistoryRecord, 0, len(snap.Spots))
	for _, sp := range snap.Spots {
		recs = append(recs, HistoryRecord{
			Timestamp: snap.Timestamp,
			CameraID:  snap.CameraID,
			SpotIndex: sp.SpotIndex,
			Status:    sp.Status,
			Lat:       cloneFloat(sp.Lat),
			Lng:       cloneFloat(sp.Lng),
		})
	}
	return recs
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
