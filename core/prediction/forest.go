package prediction

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	featureDayOfWeek   = "day_of_week"
	featureMinuteOfDay = "minute_of_day"
)

// ForestNode is one node of an exported decision tree. Leaves have Left and
// Right set to -1 and carry per-class weights in Value. Internal nodes send a
// sample left when its feature value is <= Threshold.
type ForestNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

// ForestTree is a flat node list rooted at index 0.
type ForestTree struct {
	Nodes []ForestNode `json:"nodes"`
}

// ForestArtifact is the on-disk form of the trained classifier.
type ForestArtifact struct {
	ModelType string   `json:"model_type"`
	Version   string   `json:"version"`
	Features  []string `json:"features"`
	// PositiveClass is the index in leaf values of the "at least one spot
	// empty" label.
	PositiveClass int          `json:"positive_class"`
	Trees         []ForestTree `json:"trees"`
}

// ForestModel evaluates a random forest over the two time features. The
// probability is the mean of per-tree leaf probabilities.
type ForestModel struct {
	artifact ForestArtifact
	// featureSlots[i] names which input the artifact's feature i reads.
	featureSlots []string
}

// LoadForest reads and validates a forest artifact.
func LoadForest(path string) (*ForestModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	var art ForestArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrModelUnavailable, path, err)
	}
	m, err := NewForestModel(art)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// NewForestModel validates art and returns a ready model.
func NewForestModel(art ForestArtifact) (*ForestModel, error) {
	if art.ModelType != "" && art.ModelType != "random_forest" {
		return nil, fmt.Errorf("%w: unsupported model type %q", ErrModelUnavailable, art.ModelType)
	}
	if len(art.Features) == 0 {
		art.Features = []string{featureDayOfWeek, featureMinuteOfDay}
	}
	for _, name := range art.Features {
		if name != featureDayOfWeek && name != featureMinuteOfDay {
			return nil, fmt.Errorf("%w: unknown feature %q", ErrModelUnavailable, name)
		}
	}
	if len(art.Trees) == 0 {
		return nil, fmt.Errorf("%w: forest has no trees", ErrModelUnavailable)
	}
	for i, tree := range art.Trees {
		if err := validateTree(tree, len(art.Features), art.PositiveClass); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrModelUnavailable, i, err)
		}
	}
	return &ForestModel{artifact: art, featureSlots: art.Features}, nil
}

func validateTree(t ForestTree, nFeatures, positive int) error {
	n := len(t.Nodes)
	if n == 0 {
		return fmt.Errorf("no nodes")
	}
	for i, node := range t.Nodes {
		if node.leaf() {
			if positive < 0 || positive >= len(node.Value) {
				return fmt.Errorf("leaf %d has no value for class %d", i, positive)
			}
			if floats.Sum(node.Value) <= 0 || floats.Min(node.Value) < 0 {
				return fmt.Errorf("leaf %d has invalid class weights", i)
			}
			continue
		}
		if node.Feature < 0 || node.Feature >= nFeatures {
			return fmt.Errorf("node %d references feature %d", i, node.Feature)
		}
		// Children always follow their parent, which rules out cycles.
		if node.Left <= i || node.Left >= n || node.Right <= i || node.Right >= n {
			return fmt.Errorf("node %d has invalid children %d/%d", i, node.Left, node.Right)
		}
	}
	return nil
}

func (n ForestNode) leaf() bool { return n.Left == -1 && n.Right == -1 }

// Name implements Model.
func (m *ForestModel) Name() string { return "classifier" }

// Trees returns the number of trees in the forest.
func (m *ForestModel) Trees() int { return len(m.artifact.Trees) }

// ProbabilityAnyEmpty implements Model.
func (m *ForestModel) ProbabilityAnyEmpty(f Features) float64 {
	x := make([]float64, len(m.featureSlots))
	for i, name := range m.featureSlots {
		switch name {
		case featureDayOfWeek:
			x[i] = float64(f.DayOfWeek)
		case featureMinuteOfDay:
			x[i] = float64(f.MinuteOfDay)
		}
	}
	votes := make([]float64, len(m.artifact.Trees))
	for i, tree := range m.artifact.Trees {
		leaf := tree.walk(x)
		votes[i] = leaf.Value[m.artifact.PositiveClass] / floats.Sum(leaf.Value)
	}
	return clamp01(stat.Mean(votes, nil))
}

func (t ForestTree) walk(x []float64) ForestNode {
	node := t.Nodes[0]
	for !node.leaf() {
		if x[node.Feature] <= node.Threshold {
			node = t.Nodes[node.Left]
		} else {
			node = t.Nodes[node.Right]
		}
	}
	return node
}
