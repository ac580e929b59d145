package detector

import (
	"math"
	"math/rand"
)

// IsolationForest is an ensemble of random isolation trees. Anomalous points
// isolate in fewer splits, so short average path lengths mean anomalies.
// Training is seeded, making fit results reproducible for a given corpus.
type IsolationForest struct {
	NumTrees      int         `json:"num_trees"`
	SubsampleSize int         `json:"subsample_size"`
	Trees         []*treeNode `json:"trees"`
	AvgPathLength float64     `json:"avg_path_length"`
	Trained       bool        `json:"trained"`

	rng *rand.Rand
}

// treeNode is one node of an isolation tree. Leaves keep the size of the
// partition that terminated there for the c(n) path adjustment; split nodes
// keep the partition's range on the split feature so scoring can spot values
// no training partition ever contained.
type treeNode struct {
	SplitFeature int       `json:"f"`
	SplitValue   float64   `json:"v"`
	SplitLo      float64   `json:"lo"`
	SplitHi      float64   `json:"hi"`
	Left         *treeNode `json:"l,omitempty"`
	Right        *treeNode `json:"r,omitempty"`
	Size         int       `json:"n"`
	Leaf         bool      `json:"leaf"`
}

// NewIsolationForest creates a forest with the given shape and RNG seed.
func NewIsolationForest(numTrees, subsampleSize int, seed int64) *IsolationForest {
	return &IsolationForest{
		NumTrees:      numTrees,
		SubsampleSize: subsampleSize,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// Fit builds the ensemble from a feature matrix. Refitting replaces all trees.
func (f *IsolationForest) Fit(data [][]float64) {
	if len(data) == 0 {
		return
	}

	// The height cap and the c(n) normaliser both follow the per-tree
	// subsample size, not the configured ceiling, so small corpora are
	// not grown into over-deep trees.
	size := f.SubsampleSize
	if size > len(data) {
		size = len(data)
	}
	f.AvgPathLength = pathLengthAdjustment(size)
	maxHeight := int(math.Ceil(math.Log2(math.Max(float64(size), 2))))

	f.Trees = make([]*treeNode, f.NumTrees)
	for i := range f.Trees {
		sample := f.subsample(data)
		f.Trees[i] = buildTree(sample, 0, maxHeight, f.rng)
	}
	f.Trained = true
}

// subsample draws SubsampleSize rows without replacement.
func (f *IsolationForest) subsample(data [][]float64) [][]float64 {
	n := len(data)
	size := f.SubsampleSize
	if size > n {
		size = n
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	for i := 0; i < size; i++ {
		j := i + f.rng.Intn(n-i)
		indices[i], indices[j] = indices[j], indices[i]
	}

	sample := make([][]float64, size)
	for i := 0; i < size; i++ {
		sample[i] = data[indices[i]]
	}
	return sample
}

// AnomalyScore returns s(x, n) = 2^(-E(h(x))/c(n)). Values near 1 isolate
// quickly and are anomalous; values near 0.5 look like the training mass.
func (f *IsolationForest) AnomalyScore(sample []float64) float64 {
	if !f.Trained || f.AvgPathLength == 0 {
		return 0.5
	}

	total := 0.0
	for _, tree := range f.Trees {
		total += pathLength(tree, sample, 0)
	}
	avgPath := total / float64(len(f.Trees))
	return math.Pow(2, -avgPath/f.AvgPathLength)
}

func buildTree(data [][]float64, depth, maxHeight int, rng *rand.Rand) *treeNode {
	node := &treeNode{Size: len(data)}
	if len(data) <= 1 || depth >= maxHeight {
		node.Leaf = true
		return node
	}

	feature, minVal, maxVal, ok := pickSplitFeature(data, rng)
	if !ok {
		node.Leaf = true
		return node
	}

	node.SplitFeature = feature
	node.SplitLo = minVal
	node.SplitHi = maxVal
	node.SplitValue = minVal + rng.Float64()*(maxVal-minVal)

	var left, right [][]float64
	for _, row := range data {
		if row[node.SplitFeature] < node.SplitValue {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		node.Leaf = true
		return node
	}

	node.Left = buildTree(left, depth+1, maxHeight, rng)
	node.Right = buildTree(right, depth+1, maxHeight, rng)
	return node
}

// pickSplitFeature tries candidate features in random order and returns the
// first one that still varies within the partition, with its range.
func pickSplitFeature(data [][]float64, rng *rand.Rand) (int, float64, float64, bool) {
	width := len(data[0])
	if width == 0 {
		return 0, 0, 0, false
	}
	for _, feature := range rng.Perm(width) {
		minVal, maxVal := data[0][feature], data[0][feature]
		for _, row := range data[1:] {
			v := row[feature]
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
		}
		if minVal < maxVal {
			return feature, minVal, maxVal, true
		}
	}
	return 0, 0, 0, false
}

func pathLength(node *treeNode, sample []float64, depth int) float64 {
	if node == nil {
		return float64(depth)
	}
	if node.Leaf {
		return float64(depth) + pathLengthAdjustment(node.Size)
	}
	if node.SplitFeature >= len(sample) {
		return float64(depth)
	}

	// A value more than a full partition width outside the range the split
	// was drawn from would have been cut away by the very next split on
	// this feature; count it as isolated here.
	v := sample[node.SplitFeature]
	width := node.SplitHi - node.SplitLo
	if v > node.SplitHi+width || v < node.SplitLo-width {
		return float64(depth) + 1
	}

	if v < node.SplitValue {
		return pathLength(node.Left, sample, depth+1)
	}
	return pathLength(node.Right, sample, depth+1)
}

// pathLengthAdjustment is c(n), the average path length of an unsuccessful
// BST search over n points. 0.5772156649 is the Euler-Mascheroni constant.
func pathLengthAdjustment(n int) float64 {
	switch {
	case n > 2:
		fn := float64(n)
		return 2.0*(math.Log(fn-1)+0.5772156649) - 2.0*(fn-1)/fn
	case n == 2:
		return 1.0
	default:
		return 0.0
	}
}
