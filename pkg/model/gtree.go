package model

import (
	"math"
	"sort"
)

// maxBins bounds the candidate thresholds per feature for boosted trees.
const maxBins = 255

// SplitRule selects how a boosted tree scores a candidate split.
type SplitRule int

const (
	// VarianceSplit maximises the drop in squared error of the residuals.
	VarianceSplit SplitRule = iota
	// NewtonSplit uses the regularised second-order gain G²/(H+λ).
	NewtonSplit
)

// RegressionTree is a tree fitted to gradients. Leaves hold the Newton step
// -G/(H+λ).
type RegressionTree struct {
	Root *RNode
}

// RNode is one node of a RegressionTree.
type RNode struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      *RNode
	Right     *RNode
	Value     float64
}

// Predict walks x down to a leaf.
func (t *RegressionTree) Predict(x []float64) float64 {
	node := t.Root
	for !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// treeParams are the growth limits shared by the boosting families.
type treeParams struct {
	rule            SplitRule
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	minChildWeight  float64
	lambda          float64
	gamma           float64
}

// binned is X quantised once per boosting run: Bins[i][f] is the bucket of
// X[i][f] and Cuts[f][b] is the upper edge of bucket b.
type binned struct {
	Bins [][]uint8
	Cuts [][]float64
}

// binMatrix builds at most maxBins buckets per feature. Features with few
// distinct values get one bucket per value, so their splits are exact.
func binMatrix(X [][]float64) *binned {
	n, p := len(X), len(X[0])
	b := &binned{Bins: make([][]uint8, n), Cuts: make([][]float64, p)}
	for i := range b.Bins {
		b.Bins[i] = make([]uint8, p)
	}
	col := make([]float64, n)
	for f := 0; f < p; f++ {
		for i := range X {
			col[i] = X[i][f]
		}
		sort.Float64s(col)
		uniq := col[:0:0]
		for i, v := range col {
			if i == 0 || v != col[i-1] {
				uniq = append(uniq, v)
			}
		}
		var cuts []float64
		if len(uniq) <= maxBins {
			for i := 0; i+1 < len(uniq); i++ {
				cuts = append(cuts, (uniq[i]+uniq[i+1])/2)
			}
		} else {
			for q := 1; q < maxBins; q++ {
				c := col[q*n/maxBins]
				if len(cuts) == 0 || c > cuts[len(cuts)-1] {
					cuts = append(cuts, c)
				}
			}
		}
		b.Cuts[f] = cuts
		for i := range X {
			b.Bins[i][f] = uint8(sort.SearchFloat64s(cuts, X[i][f]))
		}
	}
	return b
}

type gradBuilder struct {
	prm      treeParams
	data     *binned
	g, h     []float64
	features []int
}

// fitRegressionTree grows one tree on the rows idx using histogram split
// search over the given features.
func fitRegressionTree(prm treeParams, data *binned, g, h []float64, idx, features []int) *RegressionTree {
	b := &gradBuilder{prm: prm, data: data, g: g, h: h, features: features}
	return &RegressionTree{Root: b.build(idx, 0)}
}

func (b *gradBuilder) leafValue(G, H float64) float64 {
	d := H + b.prm.lambda
	if d < 1e-150 {
		return 0
	}
	return -G / d
}

func (b *gradBuilder) score(G, H float64, n int) float64 {
	if b.prm.rule == NewtonSplit {
		return G * G / (H + b.prm.lambda)
	}
	// residuals are -g; sum²/n is the explained variance term
	return G * G / float64(n)
}

type histBin struct {
	g, h float64
	n    int
}

func (b *gradBuilder) build(idx []int, depth int) *RNode {
	var G, H float64
	for _, i := range idx {
		G += b.g[i]
		H += b.h[i]
	}
	node := &RNode{Leaf: true, Value: b.leafValue(G, H)}
	minLeaf := max(b.prm.minSamplesLeaf, 1)
	if (b.prm.maxDepth > 0 && depth >= b.prm.maxDepth) ||
		len(idx) < max(b.prm.minSamplesSplit, 2) ||
		len(idx) < 2*minLeaf {
		return node
	}

	parent := b.score(G, H, len(idx))
	bestGain, bestFeature, bestBin := 0.0, -1, 0
	hist := make([]histBin, maxBins+1)
	for _, f := range b.features {
		cuts := b.data.Cuts[f]
		if len(cuts) == 0 {
			continue
		}
		for k := range hist[:len(cuts)+1] {
			hist[k] = histBin{}
		}
		for _, i := range idx {
			hb := &hist[b.data.Bins[i][f]]
			hb.g += b.g[i]
			hb.h += b.h[i]
			hb.n++
		}
		var gl, hl float64
		nl := 0
		for k := 0; k < len(cuts); k++ {
			gl += hist[k].g
			hl += hist[k].h
			nl += hist[k].n
			nr := len(idx) - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			if hl < b.prm.minChildWeight || H-hl < b.prm.minChildWeight {
				continue
			}
			gain := b.score(gl, hl, nl) + b.score(G-gl, H-hl, nr) - parent
			if b.prm.rule == NewtonSplit {
				gain = gain/2 - b.prm.gamma
			}
			if gain > bestGain {
				bestGain, bestFeature, bestBin = gain, f, k
			}
		}
	}
	if bestFeature < 0 || math.IsNaN(bestGain) {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if int(b.data.Bins[i][bestFeature]) <= bestBin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	node.Leaf = false
	node.Feature = bestFeature
	node.Threshold = b.data.Cuts[bestFeature][bestBin]
	node.Left = b.build(left, depth+1)
	node.Right = b.build(right, depth+1)
	return node
}
