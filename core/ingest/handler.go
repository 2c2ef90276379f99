// Package ingest validates camera analysis results and stores them as camera
// snapshots.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/parkcast/core/calibration"
	"github.com/kilianp07/parkcast/core/logger"
	coremetrics "github.com/kilianp07/parkcast/core/metrics"
	"github.com/kilianp07/parkcast/core/model"
	"github.com/kilianp07/parkcast/core/monitoring"
	"github.com/kilianp07/parkcast/core/snapshot"
)

// ErrMalformedIngestion marks an analysis result that cannot be used at all.
// The store is left untouched.
var ErrMalformedIngestion = errors.New("malformed ingestion")

// SnapshotWriter is the part of the snapshot store used by the handler.
type SnapshotWriter interface {
	PutSnapshot(ctx context.Context, cameraID string, ts time.Time, spots []model.Spot) (snapshot.PutResult, error)
}

// Outcome summarises one ingestion.
type Outcome struct {
	ID           string    `json:"id"`
	CameraID     string    `json:"camera_id"`
	Timestamp    time.Time `json:"timestamp"`
	Accepted     int       `json:"accepted"`
	Dropped      int       `json:"dropped"`
	Uncalibrated int       `json:"uncalibrated"`
	Degraded     bool      `json:"degraded"`
	Warning      string    `json:"warning,omitempty"`
}

// Handler turns raw analysis results into snapshot updates.
type Handler struct {
	store SnapshotWriter
	calib *calibration.Table
	sink  coremetrics.MetricsSink
	log   logger.Logger
	now   func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records every ingestion on sink.
func WithMetrics(sink coremetrics.MetricsSink) Option {
	return func(h *Handler) {
		if sink != nil {
			h.sink = sink
		}
	}
}

// WithLogger sets the logger used for anomalies.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithClock overrides the clock used when no timestamp is supplied.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a Handler writing to store. A nil calibration table
// leaves every spot without coordinates.
func NewHandler(store SnapshotWriter, calib *calibration.Table, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		store: store,
		calib: calib,
		sink:  coremetrics.NopSink{},
		log:   log,
		now:   time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Ingest decodes a JSON analysis result and stores it.
func (h *Handler) Ingest(ctx context.Context, cameraID string, raw []byte, ts time.Time) (Outcome, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return h.reject(cameraID, fmt.Errorf("%w: %v", ErrMalformedIngestion, err))
	}
	if dec.More() {
		return h.reject(cameraID, fmt.Errorf("%w: trailing data after analysis result", ErrMalformedIngestion))
	}
	return h.IngestValue(ctx, cameraID, v, ts)
}

// IngestValue stores an already decoded analysis result. Only JSON objects
// are accepted; a missing spots field is a valid zero-spot result.
func (h *Handler) IngestValue(ctx context.Context, cameraID string, v any, ts time.Time) (Outcome, error) {
	start := time.Now()
	if cameraID == "" {
		return h.reject(cameraID, fmt.Errorf("%w: empty camera id", ErrMalformedIngestion))
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return h.reject(cameraID, fmt.Errorf("%w: analysis result is %s, not an object", ErrMalformedIngestion, kindOf(v)))
	}
	var entries []any
	if rawSpots, present := obj["spots"]; present && rawSpots != nil {
		entries, ok = rawSpots.([]any)
		if !ok {
			return h.reject(cameraID, fmt.Errorf("%w: spots is %s, not an array", ErrMalformedIngestion, kindOf(rawSpots)))
		}
	}
	if ts.IsZero() {
		ts = h.now()
	}

	out := Outcome{ID: uuid.NewString(), CameraID: cameraID, Timestamp: ts}
	spots, dropped := h.parseSpots(cameraID, entries)
	out.Dropped = dropped
	for i := range spots {
		lat, lng, ok := h.calib.Lookup(spots[i].Key())
		if !ok {
			out.Uncalibrated++
			h.log.Debugf("spot %s has no calibration entry", spots[i].Key())
			continue
		}
		spots[i].Lat, spots[i].Lng = lat, lng
	}
	out.Accepted = len(spots)

	res, err := h.store.PutSnapshot(ctx, cameraID, ts, spots)
	outcome := coremetrics.IngestionAccepted
	if err != nil {
		if !errors.Is(err, snapshot.ErrDegradedDurability) {
			return h.reject(cameraID, err)
		}
		out.Degraded = true
		out.Warning = err.Error()
		outcome = coremetrics.IngestionDegraded
		h.log.Warnw("snapshot stored without durable history", map[string]any{
			"camera_id": cameraID,
			"ingestion": out.ID,
			"error":     err.Error(),
		})
		monitoring.CaptureException(err, map[string]string{"camera_id": cameraID, "kind": "degraded_durability"})
	} else if res.Degraded {
		out.Degraded = true
	}

	_ = h.sink.RecordIngestion(coremetrics.IngestionEvent{
		CameraID:     cameraID,
		Outcome:      outcome,
		Spots:        out.Accepted,
		Dropped:      out.Dropped,
		Uncalibrated: out.Uncalibrated,
		Duration:     time.Since(start),
		Time:         ts,
	})
	h.log.Debugw("ingested analysis result", map[string]any{
		"camera_id":    cameraID,
		"ingestion":    out.ID,
		"accepted":     out.Accepted,
		"dropped":      out.Dropped,
		"uncalibrated": out.Uncalibrated,
	})
	return out, nil
}

func (h *Handler) reject(cameraID string, err error) (Outcome, error) {
	h.log.Warnw("analysis result rejected", map[string]any{"camera_id": cameraID, "error": err.Error()})
	monitoring.CaptureException(err, map[string]string{"camera_id": cameraID, "kind": "malformed_ingestion"})
	_ = h.sink.RecordIngestion(coremetrics.IngestionEvent{
		CameraID: cameraID,
		Outcome:  coremetrics.IngestionRejected,
		Time:     h.now(),
	})
	return Outcome{CameraID: cameraID}, err
}

// parseSpots keeps valid entries. A repeated index replaces the earlier entry
// in place, so the last status wins and first-seen order is kept.
func (h *Handler) parseSpots(cameraID string, entries []any) ([]model.Spot, int) {
	spots := make([]model.Spot, 0, len(entries))
	pos := make(map[int]int, len(entries))
	dropped := 0
	for i, e := range entries {
		sp, err := parseEntry(e)
		if err != nil {
			dropped++
			h.log.Warnw("dropping spot entry", map[string]any{"camera_id": cameraID, "entry": i, "reason": err.Error()})
			continue
		}
		sp.CameraID = cameraID
		if at, dup := pos[sp.SpotIndex]; dup {
			spots[at] = sp
			continue
		}
		pos[sp.SpotIndex] = len(spots)
		spots = append(spots, sp)
	}
	return spots, dropped
}

func parseEntry(e any) (model.Spot, error) {
	obj, ok := e.(map[string]any)
	if !ok {
		return model.Spot{}, fmt.Errorf("entry is %s, not an object", kindOf(e))
	}
	idx, err := spotIndex(obj["spot_index"])
	if err != nil {
		return model.Spot{}, err
	}
	s, ok := obj["status"].(string)
	if !ok {
		return model.Spot{}, fmt.Errorf("status is %s, not a string", kindOf(obj["status"]))
	}
	st, err := model.ParseStatus(s)
	if err != nil {
		return model.Spot{}, err
	}
	return model.Spot{SpotIndex: idx, Status: st}, nil
}

// spotIndex accepts non-negative integral numbers, including 3.0.
func spotIndex(v any) (int, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			f = float64(i)
		} else if x, err := n.Float64(); err == nil {
			f = x
		} else {
			return 0, fmt.Errorf("spot_index %q is not a number", n.String())
		}
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case nil:
		return 0, errors.New("spot_index missing")
	default:
		return 0, fmt.Errorf("spot_index is %s, not a number", kindOf(v))
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("spot_index %v is not a non-negative integer", f)
	}
	return int(f), nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number, float64, int, int64:
		return "a number"
	}
	return fmt.Sprintf("%T", v)
}
