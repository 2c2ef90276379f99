// Package calibration maps spot identities to fixed geographic coordinates.
// The table is loaded once at startup and never modified afterwards.
package calibration

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/parkcast/core/geo"
	"github.com/kilianp07/parkcast/core/model"
)

// Entry is one calibrated spot.
type Entry struct {
	CameraID  string  `json:"camera_id" yaml:"camera_id"`
	SpotIndex int     `json:"spot_index" yaml:"spot_index"`
	Lat       float64 `json:"lat" yaml:"lat"`
	Lng       float64 `json:"lng" yaml:"lng"`
}

type document struct {
	Spots []Entry `json:"spots" yaml:"spots"`
}

// Table is an immutable identity to coordinate lookup.
type Table struct {
	points map[model.SpotKey]orb.Point
}

// New builds a table from entries. A repeated identity keeps the last entry.
func New(entries []Entry) (*Table, error) {
	t := &Table{points: make(map[model.SpotKey]orb.Point, len(entries))}
	for i, e := range entries {
		if e.CameraID == "" {
			return nil, fmt.Errorf("calibration entry %d: empty camera_id", i)
		}
		if e.SpotIndex < 0 {
			return nil, fmt.Errorf("calibration entry %d: negative spot_index", i)
		}
		if math.IsNaN(e.Lat) || math.IsNaN(e.Lng) || e.Lat < -90 || e.Lat > 90 || e.Lng < -180 || e.Lng > 180 {
			return nil, fmt.Errorf("calibration entry %d: coordinates out of range", i)
		}
		t.points[model.SpotKey{CameraID: e.CameraID, SpotIndex: e.SpotIndex}] = orb.Point{e.Lng, e.Lat}
	}
	return t, nil
}

// Empty returns a table without entries.
func Empty() *Table { return &Table{points: map[model.SpotKey]orb.Point{}} }

// Lookup returns fresh coordinate pointers for key, or nils when unmapped.
func (t *Table) Lookup(key model.SpotKey) (lat, lng *float64, ok bool) {
	if t == nil {
		return nil, nil, false
	}
	p, ok := t.points[key]
	if !ok {
		return nil, nil, false
	}
	return model.Float(p.Lat()), model.Float(p.Lon()), true
}

// Len returns the number of calibrated spots.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.points)
}

// Bounds returns the bounding box of every calibrated spot.
func (t *Table) Bounds() (orb.Bound, bool) {
	if t == nil {
		return orb.Bound{}, false
	}
	pts := make([]orb.Point, 0, len(t.points))
	for _, p := range t.points {
		pts = append(pts, p)
	}
	return geo.Bounds(pts)
}

// Load reads a table from path. Supported formats are YAML (.yaml, .yml),
// GeoJSON point features (.geojson, or .json holding a FeatureCollection),
// plain JSON (.json) and CSV with header camera_id,spot_index,lat,lng.
// An empty path yields an empty table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Empty(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse calibration yaml: %w", err)
		}
		entries = doc.Spots
	case ".geojson":
		entries, err = parseGeoJSON(data)
	case ".json":
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			return nil, fmt.Errorf("parse calibration json: %w", err)
		}
		if head.Type == "FeatureCollection" {
			entries, err = parseGeoJSON(data)
		} else {
			var doc document
			if err := json.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("parse calibration json: %w", err)
			}
			entries = doc.Spots
		}
	case ".csv":
		entries, err = parseCSV(data)
	default:
		return nil, fmt.Errorf("unsupported calibration format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return New(entries)
}

func parseGeoJSON(data []byte) ([]Entry, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse calibration geojson: %w", err)
	}
	entries := make([]Entry, 0, len(fc.Features))
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("feature %d: geometry %s is not a point", i, f.Geometry.GeoJSONType())
		}
		cam, ok := f.Properties["camera_id"].(string)
		if !ok {
			return nil, fmt.Errorf("feature %d: missing camera_id", i)
		}
		idx, ok := f.Properties["spot_index"].(float64)
		if !ok || idx != float64(int(idx)) {
			return nil, fmt.Errorf("feature %d: spot_index must be an integer", i)
		}
		entries = append(entries, Entry{CameraID: cam, SpotIndex: int(idx), Lat: p.Lat(), Lng: p.Lon()})
	}
	return entries, nil
}

func parseCSV(data []byte) ([]Entry, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parse calibration csv: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"camera_id", "spot_index", "lat", "lng"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("calibration csv: missing column %q", name)
		}
	}
	var entries []Entry
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("calibration csv line %d: %w", line, err)
		}
		idx, err := strconv.Atoi(row[col["spot_index"]])
		if err != nil {
			return nil, fmt.Errorf("calibration csv line %d: spot_index: %w", line, err)
		}
		lat, err := strconv.ParseFloat(row[col["lat"]], 64)
		if err != nil {
			return nil, fmt.Errorf("calibration csv line %d: lat: %w", line, err)
		}
		lng, err := strconv.ParseFloat(row[col["lng"]], 64)
		if err != nil {
			return nil, fmt.Errorf("calibration csv line %d: lng: %w", line, err)
		}
		entries = append(entries, Entry{CameraID: row[col["camera_id"]], SpotIndex: idx, Lat: lat, Lng: lng})
	}
	return entries, nil
}
