package fit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/miradorstack/mirador-activity/internal/models"
)

// Node is one decision node. Leaves have Feature == -1; otherwise samples with
// row[Feature] <= Threshold go Left.
type Node struct {
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node
	// Counts holds the training class counts that reached the node.
	Counts []float64
}

// IsLeaf reports whether the node has no split.
func (n *Node) IsLeaf() bool {
	return n.Feature < 0
}

// Class returns the majority class index; ties go to the lowest index.
func (n *Node) Class() int {
	return argmax(n.Counts)
}

// Tree is a fitted CART decision tree.
type Tree struct {
	Root      *Node
	classes   []string
	nFeatures int
}

// Classes implements Model.
func (t *Tree) Classes() []string { return t.classes }

// NumFeatures implements Model.
func (t *Tree) NumFeatures() int { return t.nFeatures }

// Predict implements Model.
func (t *Tree) Predict(row []float64) int {
	return t.leaf(row).Class()
}

func (t *Tree) leaf(row []float64) *Node {
	n := t.Root
	for !n.IsLeaf() {
		if row[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(*Node) int
	walk = func(n *Node) int {
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(t.Root)
}

// Leaves returns the number of leaf nodes.
func (t *Tree) Leaves() int {
	var walk func(*Node) int
	walk = func(n *Node) int {
		if n.IsLeaf() {
			return 1
		}
		return walk(n.Left) + walk(n.Right)
	}
	return walk(t.Root)
}

// DecisionTree fits a single CART tree.
type DecisionTree struct{}

// Fit implements Estimator.
func (DecisionTree) Fit(ctx context.Context, x [][]float64, y []string, params models.Params) (Model, error) {
	nFeatures, err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	opts, err := treeOptionsFrom(params)
	if err != nil {
		return nil, err
	}
	opts.maxFeatures = nFeatures
	if v, ok := params.Int("max_features"); ok {
		if v < 1 || v > nFeatures {
			return nil, fmt.Errorf("%w: max_features must be in [1, %d]", ErrInvalidData, nFeatures)
		}
		opts.maxFeatures = v
	}

	classes, encoded := encodeLabels(y)
	indices := make([]int, len(x))
	for i := range indices {
		indices[i] = i
	}
	b := newBuilder(x, encoded, len(classes), opts, rand.New(rand.NewSource(opts.randomState)), len(x))
	root, err := b.grow(ctx, indices)
	if err != nil {
		return nil, err
	}
	return &Tree{Root: root, classes: classes, nFeatures: nFeatures}, nil
}

type split struct {
	feature     int
	threshold   float64
	improvement float64
	left        []int
	right       []int
}

type candidate struct {
	node  *Node
	depth int
	split split
	order int
}

type builder struct {
	x             [][]float64
	y             []int
	nClasses      int
	opts          treeOptions
	rng           *rand.Rand
	total         float64
	minWeightLeaf float64
}

func newBuilder(x [][]float64, y []int, nClasses int, opts treeOptions, rng *rand.Rand, total int) *builder {
	return &builder{
		x:             x,
		y:             y,
		nClasses:      nClasses,
		opts:          opts,
		rng:           rng,
		total:         float64(total),
		minWeightLeaf: opts.minWeightFractionLeaf * float64(total),
	}
}

// grow expands nodes best-first by impurity improvement. Without a max_leaf_nodes bound every
// splittable node is expanded, which yields the same tree as depth-first growth.
func (b *builder) grow(ctx context.Context, indices []int) (*Node, error) {
	root := b.newNode(indices)
	var frontier []candidate
	order := 0
	push := func(n *Node, idx []int, depth int) {
		if s, ok := b.findSplit(idx, depth); ok {
			frontier = append(frontier, candidate{node: n, depth: depth, split: s, order: order})
			order++
		}
	}
	push(root, indices, 0)

	leaves := 1
	for len(frontier) > 0 {
		if b.opts.maxLeafNodes > 0 && leaves >= b.opts.maxLeafNodes {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best := 0
		for i := 1; i < len(frontier); i++ {
			if frontier[i].split.improvement > frontier[best].split.improvement {
				best = i
			}
		}
		c := frontier[best]
		frontier = append(frontier[:best], frontier[best+1:]...)

		c.node.Feature = c.split.feature
		c.node.Threshold = c.split.threshold
		c.node.Left = b.newNode(c.split.left)
		c.node.Right = b.newNode(c.split.right)
		leaves++

		push(c.node.Left, c.split.left, c.depth+1)
		push(c.node.Right, c.split.right, c.depth+1)
	}
	return root, nil
}

func (b *builder) newNode(idx []int) *Node {
	return &Node{Feature: -1, Counts: b.classCounts(idx)}
}

func (b *builder) classCounts(idx []int) []float64 {
	counts := make([]float64, b.nClasses)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	return counts
}

func (b *builder) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	switch b.opts.criterion {
	case "entropy":
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	default:
		g := 1.0
		for _, c := range counts {
			p := c / n
			g -= p * p
		}
		return g
	}
}

func (b *builder) findSplit(idx []int, depth int) (split, bool) {
	n := len(idx)
	nf := float64(n)
	counts := b.classCounts(idx)
	parent := b.impurity(counts, nf)

	switch {
	case b.opts.maxDepth > 0 && depth >= b.opts.maxDepth,
		n < b.opts.minSamplesSplit,
		n < 2*b.opts.minSamplesLeaf,
		nf < 2*b.minWeightLeaf,
		parent <= b.opts.minImpuritySplit:
		return split{}, false
	}

	nFeatures := len(b.x[0])
	features := b.rng.Perm(nFeatures)
	best := split{feature: -1, improvement: math.Inf(-1)}
	sorted := make([]int, n)
	visited := 0

	for _, f := range features {
		if visited >= b.opts.maxFeatures && best.feature >= 0 {
			break
		}
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })
		lo, hi := b.x[sorted[0]][f], b.x[sorted[n-1]][f]
		if lo == hi {
			continue
		}
		visited++

		if b.opts.splitter == "random" {
			threshold := lo + b.rng.Float64()*(hi-lo)
			if threshold >= hi {
				threshold = lo
			}
			if !finite(threshold) {
				continue
			}
			pos := sort.Search(n, func(i int) bool { return b.x[sorted[i]][f] > threshold })
			if imp, ok := b.evaluate(sorted, pos, counts, parent); ok && imp > best.improvement {
				best = split{feature: f, threshold: threshold, improvement: imp}
			}
			continue
		}

		left := make([]float64, b.nClasses)
		for pos := 1; pos < n; pos++ {
			left[b.y[sorted[pos-1]]]++
			prev, next := b.x[sorted[pos-1]][f], b.x[sorted[pos]][f]
			if prev == next {
				continue
			}
			imp, ok := b.improvementAt(left, counts, pos, n, parent)
			if !ok || imp <= best.improvement {
				continue
			}
			threshold := prev + (next-prev)/2
			if threshold >= next {
				threshold = prev
			}
			if !finite(threshold) {
				continue
			}
			best = split{feature: f, threshold: threshold, improvement: imp}
		}
	}

	if best.feature < 0 {
		return split{}, false
	}
	for _, i := range idx {
		if b.x[i][best.feature] <= best.threshold {
			best.left = append(best.left, i)
		} else {
			best.right = append(best.right, i)
		}
	}
	return best, true
}

// evaluate scores a split placing sorted[:pos] on the left.
func (b *builder) evaluate(sorted []int, pos int, counts []float64, parent float64) (float64, bool) {
	left := make([]float64, b.nClasses)
	for _, i := range sorted[:pos] {
		left[b.y[i]]++
	}
	return b.improvementAt(left, counts, pos, len(sorted), parent)
}

func (b *builder) improvementAt(left, counts []float64, nl, n int, parent float64) (float64, bool) {
	nr := n - nl
	if nl < b.opts.minSamplesLeaf || nr < b.opts.minSamplesLeaf {
		return 0, false
	}
	if float64(nl) < b.minWeightLeaf || float64(nr) < b.minWeightLeaf {
		return 0, false
	}
	right := make([]float64, b.nClasses)
	for c := range counts {
		right[c] = counts[c] - left[c]
	}
	impL := b.impurity(left, float64(nl))
	impR := b.impurity(right, float64(nr))
	return (parent*float64(n) - float64(nl)*impL - float64(nr)*impR) / b.total, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
