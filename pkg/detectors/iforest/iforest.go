// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/sensorguard/pkg/detectors"
)

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	jobs          int
	seed          int64

	// Trained model
	trees         []tree
	nFeatures     int
	avgPathLength float64
	threshold     float64
	trained       bool
}

// tree is an isolation tree stored as a flat node slice; nodes[0] is the root.
type tree []Node

// Node is a node in an isolation tree. Leaves have Left == -1.
type Node struct {
	Feature int
	Split   float64
	Left    int32
	Right   int32
	// Size is the number of training samples that reached a leaf.
	Size int
}

func (n Node) leaf() bool { return n.Left < 0 }

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// WithJobs sets how many trees are built concurrently. The fitted forest
// does not depend on it.
func WithJobs(n int) Option {
	return func(f *IsolationForest) {
		f.jobs = n
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		jobs:          1,
		seed:          42,
		threshold:     0.5,
	}

	for _, opt := range opts {
		opt(f)
	}
	if f.jobs < 1 {
		f.jobs = 1
	}

	return f
}

// Factory returns a detectors.Factory producing forests with opts and the
// requested contamination.
func Factory(opts ...Option) detectors.Factory {
	return func(contamination float64) detectors.Detector {
		all := append(append([]Option(nil), opts...), WithContamination(contamination))
		return New(all...)
	}
}

var _ detectors.Detector = (*IsolationForest)(nil)

// Fit trains the Isolation Forest on the provided data.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return detectors.ErrEmptyData
	}
	if !detectors.ValidContamination(f.contamination) {
		return fmt.Errorf("%w: got %g", detectors.ErrContamination, f.contamination)
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return fmt.Errorf("%w: samples have no features", detectors.ErrDimension)
	}
	for i, row := range data {
		if len(row) != nFeatures {
			return fmt.Errorf("%w: row %d has %d features, want %d", detectors.ErrDimension, i, len(row), nFeatures)
		}
	}

	// Adjust sample size if needed
	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	// Per-tree seeds are drawn up front so the forest is the same for any
	// number of jobs.
	rng := rand.New(rand.NewSource(f.seed))
	seeds := make([]int64, f.nTrees)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	trees := make([]tree, f.nTrees)
	var g errgroup.Group
	g.SetLimit(f.jobs)
	for i := range trees {
		g.Go(func() error {
			b := builder{
				rng:       rand.New(rand.NewSource(seeds[i])),
				maxDepth:  maxDepth,
				nFeatures: nFeatures,
			}
			// Sample without replacement
			indices := b.rng.Perm(nSamples)[:sampleSize]
			sample := make([][]float64, sampleSize)
			for j, idx := range indices {
				sample[j] = data[idx]
			}
			trees[i] = b.build(sample)
			return nil
		})
	}
	_ = g.Wait()

	f.trees = trees
	f.nFeatures = nFeatures
	f.avgPathLength = averagePathLength(float64(sampleSize))

	// Set threshold based on contamination
	scores, err := f.predict(data)
	if err != nil {
		return err
	}
	f.threshold = quantile(scores, 1-f.contamination)
	f.trained = true

	return nil
}

// builder grows one isolation tree.
type builder struct {
	rng       *rand.Rand
	maxDepth  int
	nFeatures int
	nodes     tree
}

func (b *builder) build(data [][]float64) tree {
	b.nodes = make(tree, 0, 2*len(data))
	b.grow(data, 0)
	return b.nodes
}

// grow appends the subtree for data and returns its root index.
func (b *builder) grow(data [][]float64, depth int) int32 {
	n := len(data)
	id := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Size: n})

	// Terminal conditions
	if depth >= b.maxDepth || n <= 1 {
		return id
	}

	// Random feature and split value
	feature := b.rng.Intn(b.nFeatures)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		minVal = math.Min(minVal, row[feature])
		maxVal = math.Max(maxVal, row[feature])
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return id
	}

	split := minVal + b.rng.Float64()*(maxVal-minVal)

	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = Node{Feature: feature, Split: split, Left: l, Right: r}
	return id
}

// Predict returns anomaly scores for the given samples.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, detectors.ErrNotTrained
	}

	return f.predict(data)
}

func (f *IsolationForest) predict(data [][]float64) ([]float64, error) {
	scores := make([]float64, len(data))

	for i, sample := range data {
		if len(sample) != f.nFeatures {
			return nil, fmt.Errorf("%w: sample %d has %d features, want %d", detectors.ErrDimension, i, len(sample), f.nFeatures)
		}
		scores[i] = f.score(sample)
	}

	return scores, nil
}

// score returns 2^(-E[h(x)] / c(n)); higher is more anomalous.
func (f *IsolationForest) score(sample []float64) float64 {
	if f.avgPathLength == 0 {
		return 0.5
	}
	var totalPath float64
	for _, t := range f.trees {
		totalPath += t.pathLength(sample)
	}
	avgPath := totalPath / float64(len(f.trees))

	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength walks sample down the tree and adds the expected remaining
// depth at the leaf.
func (t tree) pathLength(sample []float64) float64 {
	depth := 0
	n := t[0]
	for !n.leaf() {
		if sample[n.Feature] < n.Split {
			n = t[n.Left]
		} else {
			n = t[n.Right]
		}
		depth++
	}
	return float64(depth) + averagePathLength(float64(n.Size))
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, with H(i) ~ ln(i) + Euler-Mascheroni
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Threshold returns the current anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// Contamination returns the configured contamination fraction.
func (f *IsolationForest) Contamination() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.contamination
}

// snapshot is the gob form of a trained forest.
type snapshot struct {
	SampleSize    int
	Contamination float64
	Threshold     float64
	AvgPathLength float64
	NFeatures     int
	Trees         [][]Node
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, detectors.ErrNotTrained
	}

	s := snapshot{
		SampleSize:    f.sampleSize,
		Contamination: f.contamination,
		Threshold:     f.threshold,
		AvgPathLength: f.avgPathLength,
		NFeatures:     f.nFeatures,
		Trees:         make([][]Node, len(f.trees)),
	}
	for i, t := range f.trees {
		s.Trees[i] = t
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	if len(s.Trees) == 0 {
		return fmt.Errorf("load forest: %w", detectors.ErrNotTrained)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nTrees = len(s.Trees)
	f.sampleSize = s.SampleSize
	f.contamination = s.Contamination
	f.threshold = s.Threshold
	f.avgPathLength = s.AvgPathLength
	f.nFeatures = s.NFeatures
	f.trees = make([]tree, len(s.Trees))
	for i, t := range s.Trees {
		f.trees[i] = t
	}
	f.trained = true

	return nil
}

// quantile returns the q-th quantile (0..1) of data, nearest-rank below.
func quantile(data []float64, q float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * q)
	return sorted[idx]
}
