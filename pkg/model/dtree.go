package model

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/juju/errors"

	"churn/pkg/core"
)

// ---------------------------
// Types & options
// ---------------------------

// DecisionTreeClassifier is a CART-style binary classifier. Samples may carry
// weights, which is how bagging and boosting reuse it.
type DecisionTreeClassifier struct {
	// Hyperparameters / options
	MaxDepth            int     // maximum depth (root depth = 0). 0 => no limit
	MinSamplesSplit     int     // minimum samples to attempt a split
	MinSamplesLeaf      int     // minimum samples required in each leaf
	Criterion           string  // "gini" (default) or "entropy"
	MaxFeatures         int     // 0 => all features, >0 => features sampled per split
	MinImpurityDecrease float64 // minimal impurity decrease to accept a split
	RandomState         int64   // seed for feature subsampling
	// PruneFraction > 0 holds out that share of each class in Fit, grows the
	// tree on the rest and prunes it against the held-out rows.
	PruneFraction float64

	Root *Node
}

// Node is one tree node. Exported so fitted trees survive gob.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64 // x <= Threshold => Left
	Left      *Node
	Right     *Node

	N     int     // samples that reached the node
	W     float64 // their total weight
	Proba float64 // weighted share of class 1
}

// Option functional config
type Option func(*DecisionTreeClassifier)

func WithMaxDepth(d int) Option { return func(t *DecisionTreeClassifier) { t.MaxDepth = d } }
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeClassifier) { t.MinSamplesSplit = n }
}
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeClassifier) { t.MinSamplesLeaf = n }
}
func WithCriterion(c string) Option { return func(t *DecisionTreeClassifier) { t.Criterion = c } }
func WithMaxFeatures(k int) Option  { return func(t *DecisionTreeClassifier) { t.MaxFeatures = k } }
func WithMinImpurityDecrease(v float64) Option {
	return func(t *DecisionTreeClassifier) { t.MinImpurityDecrease = v }
}
func WithRandomState(seed int64) Option {
	return func(t *DecisionTreeClassifier) { t.RandomState = seed }
}
func WithPruning(fraction float64) Option {
	return func(t *DecisionTreeClassifier) { t.PruneFraction = fraction }
}

// NewDecisionTreeClassifier returns a classifier with sensible defaults.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	d := &DecisionTreeClassifier{
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Criterion:       "gini",
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// parallelSplitRows is the node size from which features are searched
// concurrently.
const parallelSplitRows = 4096

// ---------------------------
// Public API: Fit / Predict / PredictProba / Prune
// ---------------------------

func (t *DecisionTreeClassifier) Name() string { return "Decision Tree" }

// Fit trains the tree on X (n x p) and 0/1 labels y with unit weights. With
// PruneFraction set, part of every class is held back for reduced-error
// pruning; classes too small to spare a row keep all of them for growing.
func (t *DecisionTreeClassifier) Fit(X [][]float64, y []int) error {
	if t.PruneFraction < 0 || t.PruneFraction >= 1 {
		return errors.NotValidf("dtree: prune fraction %v", t.PruneFraction)
	}
	if t.PruneFraction == 0 {
		return t.FitWeighted(X, y, nil)
	}
	if err := checkXY("dtree", X, y); err != nil {
		return err
	}
	grow, val := t.pruneSplit(y)
	if len(val) == 0 {
		return t.FitWeighted(X, y, nil)
	}
	w := make([]float64, len(X))
	for _, i := range grow {
		w[i] = 1
	}
	if err := t.FitWeighted(X, y, w); err != nil {
		return err
	}
	Xv, yv := make([][]float64, len(val)), make([]int, len(val))
	for n, i := range val {
		Xv[n], yv[n] = X[i], y[i]
	}
	_, err := t.PruneReducedError(Xv, yv)
	return err
}

// pruneSplit shuffles each class with a seed derived from RandomState and
// moves round(PruneFraction*n) of its rows to the validation side, leaving at
// least one row per class to grow on.
func (t *DecisionTreeClassifier) pruneSplit(y []int) (grow, val []int) {
	rnd := core.NewRand(core.DeriveSeed(t.RandomState, 0))
	for _, class := range []int{0, 1} {
		var rows []int
		for i, v := range y {
			if v == class {
				rows = append(rows, i)
			}
		}
		rnd.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		nVal := min(int(math.Round(t.PruneFraction*float64(len(rows)))), len(rows)-1)
		if nVal < 0 {
			nVal = 0
		}
		val = append(val, rows[:nVal]...)
		grow = append(grow, rows[nVal:]...)
	}
	sort.Ints(grow)
	sort.Ints(val)
	return grow, val
}

// FitWeighted trains with per-sample weights. A nil w means unit weights;
// samples with zero weight are left out entirely.
func (t *DecisionTreeClassifier) FitWeighted(X [][]float64, y []int, w []float64) error {
	if err := checkXY("dtree", X, y); err != nil {
		return err
	}
	if w != nil && len(w) != len(X) {
		return errors.New("dtree: X and sample weights length mismatch")
	}
	if t.Criterion != "" && t.Criterion != "gini" && t.Criterion != "entropy" {
		return errors.Errorf("dtree: unknown criterion %q", t.Criterion)
	}
	if w == nil {
		w = make([]float64, len(X))
		for i := range w {
			w[i] = 1
		}
	}

	idx := make([]int, 0, len(X))
	for i := range X {
		if w[i] > 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return errors.New("dtree: every sample has zero weight")
	}

	b := &treeBuilder{
		t:   t,
		X:   X,
		y:   y,
		w:   w,
		p:   len(X[0]),
		rnd: core.NewRand(t.RandomState),
	}
	t.Root = b.build(idx, 0)
	return nil
}

// Predict labels every row whose class-1 probability reaches one half.
func (t *DecisionTreeClassifier) Predict(X [][]float64) []int {
	return BinaryPredFromProba(t.PredictProba(X), 0.5)
}

// PredictProba returns p(y=1) per row.
func (t *DecisionTreeClassifier) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i := range X {
		out[i] = t.leaf(X[i]).Proba
	}
	return out
}

// Depth returns the length of the longest root-to-leaf path.
func (t *DecisionTreeClassifier) Depth() int { return depthOf(t.Root) }

// Leaves counts terminal nodes.
func (t *DecisionTreeClassifier) Leaves() int { return leavesOf(t.Root) }

// PruneReducedError performs reduced-error post-pruning using validation data (Xval,yval).
// It collapses an internal node when that does not lower validation accuracy.
// Returns number of pruned nodes.
func (t *DecisionTreeClassifier) PruneReducedError(Xval [][]float64, yval []int) (int, error) {
	if t.Root == nil {
		return 0, errors.New("dtree: tree not trained")
	}
	if len(Xval) == 0 || len(yval) != len(Xval) {
		return 0, errors.New("dtree: invalid validation set")
	}
	baseline := Accuracy(yval, t.Predict(Xval))
	return t.pruneNode(t.Root, Xval, yval, baseline), nil
}

// ---------------------------
// Internal builders & helpers
// ---------------------------

// treeBuilder carries the read-only training state through the recursion.
type treeBuilder struct {
	t   *DecisionTreeClassifier
	X   [][]float64
	y   []int
	w   []float64
	p   int
	rnd *rand.Rand
}

// A struct to hold the results of a single feature's best split search.
type splitResult struct {
	gain      float64
	feature   int
	threshold float64
	position  int // rows [0, position) of the sorted order go left
	order     []int
}

// pair is a value and its sample index.
type pair struct {
	v float64
	i int
}

func (b *treeBuilder) impurity(w0, w1 float64) float64 {
	if b.t.Criterion == "entropy" {
		return entropy(w0, w1)
	}
	return gini(w0, w1)
}

func (b *treeBuilder) build(idx []int, depth int) *Node {
	var w0, w1 float64
	for _, i := range idx {
		if b.y[i] == 1 {
			w1 += b.w[i]
		} else {
			w0 += b.w[i]
		}
	}
	node := &Node{Leaf: true, N: len(idx), W: w0 + w1}
	if node.W > 0 {
		node.Proba = w1 / node.W
	}

	minLeaf := max(b.t.MinSamplesLeaf, 1)
	if w0 == 0 || w1 == 0 ||
		len(idx) < b.t.MinSamplesSplit ||
		len(idx) < 2*minLeaf ||
		(b.t.MaxDepth > 0 && depth >= b.t.MaxDepth) {
		return node
	}

	features := b.features()
	parent := b.impurity(w0, w1)
	results := make([]splitResult, len(features))
	if len(idx) >= parallelSplitRows && len(features) > 1 {
		var wg sync.WaitGroup
		for k, f := range features {
			wg.Add(1)
			go func(k, f int) {
				defer wg.Done()
				results[k] = b.bestSplit(idx, f, parent, w0, w1, minLeaf)
			}(k, f)
		}
		wg.Wait()
	} else {
		for k, f := range features {
			results[k] = b.bestSplit(idx, f, parent, w0, w1, minLeaf)
		}
	}

	// first feature in search order wins ties
	best := splitResult{feature: -1}
	for _, r := range results {
		if r.feature >= 0 && r.gain > best.gain {
			best = r
		}
	}
	if best.feature == -1 || best.gain <= b.t.MinImpurityDecrease {
		return node
	}

	node.Leaf = false
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = b.build(append([]int(nil), best.order[:best.position]...), depth+1)
	node.Right = b.build(append([]int(nil), best.order[best.position:]...), depth+1)
	return node
}

// features picks the candidate features for one split: all of them, or a
// seeded sample of MaxFeatures.
func (b *treeBuilder) features() []int {
	out := make([]int, b.p)
	for j := range out {
		out[j] = j
	}
	if b.t.MaxFeatures <= 0 || b.t.MaxFeatures >= b.p {
		return out
	}
	for i := 0; i < b.t.MaxFeatures; i++ {
		j := i + b.rnd.Intn(b.p-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:b.t.MaxFeatures]
}

// bestSplit sweeps the sorted values of feature f once, moving one sample at a
// time from right to left.
func (b *treeBuilder) bestSplit(idx []int, f int, parent, w0, w1 float64, minLeaf int) splitResult {
	result := splitResult{feature: -1}

	vals := make([]pair, len(idx))
	for k, i := range idx {
		vals[k] = pair{b.X[i][f], i}
	}
	sort.Slice(vals, func(a, c int) bool {
		if vals[a].v != vals[c].v {
			return vals[a].v < vals[c].v
		}
		return vals[a].i < vals[c].i
	})
	if vals[0].v == vals[len(vals)-1].v {
		return result
	}

	total := w0 + w1
	var l0, l1 float64
	for s := 1; s < len(vals); s++ {
		prev := vals[s-1]
		if b.y[prev.i] == 1 {
			l1 += b.w[prev.i]
		} else {
			l0 += b.w[prev.i]
		}
		if vals[s].v == prev.v || s < minLeaf || len(vals)-s < minLeaf {
			continue
		}
		lw := l0 + l1
		rw := total - lw
		weighted := (lw/total)*b.impurity(l0, l1) + (rw/total)*b.impurity(w0-l0, w1-l1)
		if gain := parent - weighted; gain > result.gain {
			result.gain = gain
			result.feature = f
			result.threshold = (prev.v + vals[s].v) / 2.0
			result.position = s
		}
	}
	if result.feature >= 0 {
		result.order = make([]int, len(vals))
		for k, pv := range vals {
			result.order[k] = pv.i
		}
	}
	return result
}

func checkXY(model string, X [][]float64, y []int) error {
	if len(X) == 0 {
		return errors.Errorf("%s: empty X", model)
	}
	if len(y) != len(X) {
		return errors.Errorf("%s: X and y length mismatch", model)
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return errors.Errorf("%s: inconsistent number of features in X rows", model)
		}
	}
	return nil
}

// ---------------------------
// Prediction helper
// ---------------------------

func (t *DecisionTreeClassifier) leaf(x []float64) *Node {
	if t.Root == nil {
		return &Node{Leaf: true, Proba: 0.5}
	}
	node := t.Root
	for !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// ---------------------------
// Utilities: impurity & misc
// ---------------------------

func gini(w0, w1 float64) float64 {
	n := w0 + w1
	if n == 0 {
		return 0
	}
	p := w1 / n
	return 2 * p * (1 - p)
}

func entropy(w0, w1 float64) float64 {
	n := w0 + w1
	if n == 0 {
		return 0
	}
	res := 0.0
	for _, c := range []float64{w0, w1} {
		if c == 0 {
			continue
		}
		p := c / n
		res -= p * math.Log2(p)
	}
	return res
}

func depthOf(n *Node) int {
	if n == nil || n.Leaf {
		return 0
	}
	return 1 + max(depthOf(n.Left), depthOf(n.Right))
}

func leavesOf(n *Node) int {
	if n == nil {
		return 0
	}
	if n.Leaf {
		return 1
	}
	return leavesOf(n.Left) + leavesOf(n.Right)
}

// ---------------------------
// Reduced-error pruning implementation
// ---------------------------

// pruneNode traverses post-order and collapses nodes whose two leaf children
// can be merged without losing validation accuracy.
func (t *DecisionTreeClassifier) pruneNode(node *Node, Xval [][]float64, yval []int, baseline float64) int {
	if node == nil || node.Leaf {
		return 0
	}
	pruned := t.pruneNode(node.Left, Xval, yval, baseline)
	pruned += t.pruneNode(node.Right, Xval, yval, baseline)

	if !node.Left.Leaf || !node.Right.Leaf {
		return pruned
	}
	left, right := node.Left, node.Right
	node.Leaf, node.Left, node.Right = true, nil, nil
	if acc := Accuracy(yval, t.Predict(Xval)); acc >= baseline {
		return pruned + 1
	}
	node.Leaf, node.Left, node.Right = false, left, right
	return pruned
}
