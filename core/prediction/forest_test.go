package prediction

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// morningForest predicts 0.2 before 10:00 and 0.9 from 10:00 on.
func morningForest(t *testing.T) *ForestModel {
	t.Helper()
	m, err := NewForestModel(ForestArtifact{
		ModelType:     "random_forest",
		Features:      []string{"day_of_week", "minute_of_day"},
		PositiveClass: 1,
		Trees: []ForestTree{{Nodes: []ForestNode{
			{Feature: 1, Threshold: 599.5, Left: 1, Right: 2},
			{Left: -1, Right: -1, Value: []float64{8, 2}},
			{Left: -1, Right: -1, Value: []float64{1, 9}},
		}}},
	})
	require.NoError(t, err)
	return m
}

func TestForest_MeanOfTrees(t *testing.T) {
	m, err := NewForestModel(ForestArtifact{
		Features:      []string{"minute_of_day", "day_of_week"},
		PositiveClass: 1,
		Trees: []ForestTree{
			{Nodes: []ForestNode{
				{Feature: 0, Threshold: 480, Left: 1, Right: 2},
				{Left: -1, Right: -1, Value: []float64{0.1, 0.9}},
				{Left: -1, Right: -1, Value: []float64{0.8, 0.2}},
			}},
			{Nodes: []ForestNode{
				{Feature: 1, Threshold: 4.5, Left: 1, Right: 2},
				{Left: -1, Right: -1, Value: []float64{5, 5}},
				{Left: -1, Right: -1, Value: []float64{0, 4}},
			}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Trees())
	assert.InDelta(t, 0.7, m.ProbabilityAnyEmpty(Features{DayOfWeek: 0, MinuteOfDay: 400}), 1e-9)
	assert.InDelta(t, 0.35, m.ProbabilityAnyEmpty(Features{DayOfWeek: 2, MinuteOfDay: 700}), 1e-9)
	assert.InDelta(t, 0.6, m.ProbabilityAnyEmpty(Features{DayOfWeek: 6, MinuteOfDay: 700}), 1e-9)
}

func TestForest_Validation(t *testing.T) {
	leaf := ForestNode{Left: -1, Right: -1, Value: []float64{1, 1}}
	cases := map[string]ForestArtifact{
		"no trees":        {},
		"unknown feature": {Features: []string{"temperature"}, Trees: []ForestTree{{Nodes: []ForestNode{leaf}}}},
		"wrong type":      {ModelType: "svm", Trees: []ForestTree{{Nodes: []ForestNode{leaf}}}},
		"cycle": {PositiveClass: 1, Trees: []ForestTree{{Nodes: []ForestNode{
			{Feature: 0, Threshold: 1, Left: 1, Right: 0}, leaf,
		}}}},
		"bad feature index": {PositiveClass: 1, Trees: []ForestTree{{Nodes: []ForestNode{
			{Feature: 5, Threshold: 1, Left: 1, Right: 2}, leaf, leaf,
		}}}},
		"missing class": {PositiveClass: 3, Trees: []ForestTree{{Nodes: []ForestNode{leaf}}}},
		"zero weights": {PositiveClass: 1, Trees: []ForestTree{{Nodes: []ForestNode{
			{Left: -1, Right: -1, Value: []float64{0, 0}},
		}}}},
	}
	for name, art := range cases {
		_, err := NewForestModel(art)
		assert.ErrorIsf(t, err, ErrModelUnavailable, name)
	}
}

func TestLoadForest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "model_type": "random_forest",
  "features": ["day_of_week", "minute_of_day"],
  "positive_class": 1,
  "trees": [{"nodes": [{"feature": -1, "threshold": 0, "left": -1, "right": -1, "value": [1, 3]}]}]
}`), 0o644))
	m, err := LoadForest(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, m.ProbabilityAnyEmpty(FeaturesAt(time.Now())), 1e-9)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"trees": [`), 0o644))
	_, err = LoadForest(bad)
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, err = LoadForest(filepath.Join(dir, "nope.json"))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}
