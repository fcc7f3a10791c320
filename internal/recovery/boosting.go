package recovery

import (
	"errors"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	maxBins        = 255
	minSumHessian  = 1e-3
	maxBoostedRate = 700.0
)

// treeNode is a node of a regression tree. Leaves have feature == -1.
type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

type regressionTree struct {
	nodes []treeNode
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.feature < 0 {
			return n.value
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// BoostedPoissonRegressor is a gradient-boosted tree ensemble with a Poisson
// objective. Trees grow leaf-wise on binned features, splitting the leaf with
// the highest gain until NumLeaves is reached.
type BoostedPoissonRegressor struct {
	Config BoostingConfig

	base  float64
	trees []regressionTree
	zero  bool
}

// binnedFeature maps a raw feature column to histogram bins.
type binnedFeature struct {
	upper []float64 // inclusive upper bound of each bin
	bins  []int     // bin of every training row
}

func binFeature(column []float64) binnedFeature {
	distinct := slices.Clone(column)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)

	upper := distinct
	if len(distinct) > maxBins {
		upper = make([]float64, 0, maxBins)
		step := float64(len(distinct)) / maxBins
		for b := 1; b <= maxBins; b++ {
			idx := int(math.Ceil(float64(b)*step)) - 1
			upper = append(upper, distinct[min(idx, len(distinct)-1)])
		}
		upper = slices.Compact(upper)
	}

	bins := make([]int, len(column))
	for i, v := range column {
		bins[i] = sort.SearchFloat64s(upper, v)
		if bins[i] >= len(upper) {
			bins[i] = len(upper) - 1
		}
	}
	return binnedFeature{upper: upper, bins: bins}
}

// leafCandidate is a leaf together with its best available split.
type leafCandidate struct {
	node    int
	rows    []int
	gain    float64
	feature int
	bin     int
}

// Fit trains the ensemble on the feature matrix x and counts y.
func (m *BoostedPoissonRegressor) Fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 {
		return errors.New("boosted regression: no training rows")
	}

	mean := floats.Sum(y) / float64(n)
	if mean <= 0 {
		m.zero = true
		return nil
	}
	m.base = math.Log(mean)
	m.trees = m.trees[:0]

	p := len(x[0])
	features := make([]binnedFeature, p)
	column := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			column[i] = x[i][j]
		}
		features[j] = binFeature(column)
	}

	score := make([]float64, n)
	for i := range score {
		score[i] = m.base
	}
	grad := make([]float64, n)
	hess := make([]float64, n)

	for it := 0; it < m.Config.Estimators; it++ {
		for i := 0; i < n; i++ {
			mu := math.Exp(math.Min(score[i], maxBoostedRate))
			grad[i] = mu - y[i]
			hess[i] = math.Exp(math.Min(score[i]+m.Config.MaxDeltaStep, maxBoostedRate))
		}

		tree, leafOf := m.growTree(features, grad, hess, n)
		for i := 0; i < n; i++ {
			score[i] += tree.nodes[leafOf[i]].value
		}
		m.trees = append(m.trees, tree)
	}

	for _, s := range score {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return errors.New("boosted regression: scores diverged")
		}
	}
	return nil
}

func (m *BoostedPoissonRegressor) growTree(features []binnedFeature, grad, hess []float64, n int) (regressionTree, []int) {
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	tree := regressionTree{nodes: []treeNode{{feature: -1}}}
	leafOf := make([]int, n)

	leaves := []*leafCandidate{m.bestSplit(0, all, features, grad, hess)}
	for len(leaves) < m.Config.NumLeaves {
		best := -1
		for i, l := range leaves {
			if l.feature >= 0 && (best < 0 || l.gain > leaves[best].gain) {
				best = i
			}
		}
		if best < 0 {
			break
		}

		leaf := leaves[best]
		f := features[leaf.feature]
		var leftRows, rightRows []int
		for _, r := range leaf.rows {
			if f.bins[r] <= leaf.bin {
				leftRows = append(leftRows, r)
			} else {
				rightRows = append(rightRows, r)
			}
		}

		leftID := len(tree.nodes)
		rightID := leftID + 1
		tree.nodes = append(tree.nodes, treeNode{feature: -1}, treeNode{feature: -1})
		tree.nodes[leaf.node] = treeNode{
			feature:   leaf.feature,
			threshold: f.upper[leaf.bin],
			left:      leftID,
			right:     rightID,
		}

		leaves[best] = m.bestSplit(leftID, leftRows, features, grad, hess)
		leaves = append(leaves, m.bestSplit(rightID, rightRows, features, grad, hess))
	}

	for _, l := range leaves {
		var g, h float64
		for _, r := range l.rows {
			g += grad[r]
			h += hess[r]
			leafOf[r] = l.node
		}
		tree.nodes[l.node].value = -g / h * m.Config.LearningRate
	}
	return tree, leafOf
}

func (m *BoostedPoissonRegressor) bestSplit(node int, rows []int, features []binnedFeature, grad, hess []float64) *leafCandidate {
	cand := &leafCandidate{node: node, rows: rows, feature: -1}
	if len(rows) < 2*m.Config.MinDataInLeaf {
		return cand
	}

	var gTotal, hTotal float64
	for _, r := range rows {
		gTotal += grad[r]
		hTotal += hess[r]
	}
	parent := gTotal * gTotal / hTotal

	for j, f := range features {
		nb := len(f.upper)
		if nb < 2 {
			continue
		}
		gHist := make([]float64, nb)
		hHist := make([]float64, nb)
		cHist := make([]int, nb)
		for _, r := range rows {
			b := f.bins[r]
			gHist[b] += grad[r]
			hHist[b] += hess[r]
			cHist[b]++
		}

		var gl, hl float64
		cl := 0
		for b := 0; b < nb-1; b++ {
			gl += gHist[b]
			hl += hHist[b]
			cl += cHist[b]
			cr := len(rows) - cl
			if cl < m.Config.MinDataInLeaf {
				continue
			}
			if cr < m.Config.MinDataInLeaf {
				break
			}
			hr := hTotal - hl
			if hl < minSumHessian || hr < minSumHessian {
				continue
			}
			gr := gTotal - gl
			gain := gl*gl/hl + gr*gr/hr - parent
			if gain > 0 && gain > cand.gain {
				cand.gain = gain
				cand.feature = j
				cand.bin = b
			}
		}
	}
	return cand
}

// Predict returns the expected count for each row.
func (m *BoostedPoissonRegressor) Predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	if m.zero {
		return out
	}
	for i, row := range x {
		s := m.base
		for t := range m.trees {
			s += m.trees[t].predict(row)
		}
		out[i] = math.Exp(math.Min(s, maxBoostedRate))
	}
	return out
}
