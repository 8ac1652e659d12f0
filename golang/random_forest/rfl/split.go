package rfl

import (
	"sort"

	"github.com/tarstars/bagged_forest/golang/random_forest/rfv"
)

//BestSplit contains results of the split selection algorithm.
type BestSplit struct {
	featureIndex     int
	threshold        float64
	score            float64 // weighted impurity of both children
	impurityDecrease float64
	validSplit       bool
}

// impurity keeps running statistics of a set of weighted samples:
// class weights for classification, weighted moments for regression.
type impurity struct {
	kind         rfv.Kind
	classWeights []float64
	weight       float64
	sum, sumSq   float64
	count        int
}

func newImpurity(kind rfv.Kind, nClasses int) *impurity {
	imp := &impurity{kind: kind}
	if kind == rfv.Classification {
		imp.classWeights = make([]float64, nClasses)
	}
	return imp
}

func (imp *impurity) reset() {
	for c := range imp.classWeights {
		imp.classWeights[c] = 0
	}
	imp.weight, imp.sum, imp.sumSq, imp.count = 0, 0, 0, 0
}

func (imp *impurity) add(label float64, class int, w float64) {
	imp.count++
	imp.weight += w
	if imp.kind == rfv.Classification {
		imp.classWeights[class] += w
		return
	}
	imp.sum += w * label
	imp.sumSq += w * label * label
}

func (imp *impurity) sub(label float64, class int, w float64) {
	imp.count--
	imp.weight -= w
	if imp.kind == rfv.Classification {
		imp.classWeights[class] -= w
		return
	}
	imp.sum -= w * label
	imp.sumSq -= w * label * label
}

func (imp *impurity) copyFrom(other *impurity) {
	copy(imp.classWeights, other.classWeights)
	imp.weight, imp.sum, imp.sumSq, imp.count = other.weight, other.sum, other.sumSq, other.count
}

//value is the gini impurity for classification and the weighted variance for regression.
func (imp *impurity) value() float64 {
	if imp.weight <= 0 {
		return 0
	}
	if imp.kind == rfv.Classification {
		g := 1.0
		for _, cw := range imp.classWeights {
			p := cw / imp.weight
			g -= p * p
		}
		return g
	}
	mean := imp.sum / imp.weight
	v := imp.sumSq/imp.weight - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

//prediction is the weighted majority class or the weighted mean.
func (imp *impurity) prediction(classes []float64) float64 {
	if imp.kind == rfv.Classification {
		best := 0
		for c, cw := range imp.classWeights {
			if cw > imp.classWeights[best] {
				best = c
			}
		}
		return classes[best]
	}
	if imp.weight <= 0 {
		return 0
	}
	return imp.sum / imp.weight
}

//argsortInstances orders sample indices by the value of one feature.
func argsortInstances(instances []int, column func(int) float64) []int {
	sorted := append([]int(nil), instances...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return column(sorted[i]) < column(sorted[j])
	})
	return sorted
}

//scanForSplit sorts the node samples along feature q and finds the threshold
//that minimizes the weighted impurity of both children.
func (b *treeBuilder) scanForSplit(begin, end, q int, total *impurity) (bestSplit BestSplit) {
	column := func(ind int) float64 { return b.features.At(ind, q) }
	sorted := argsortInstances(b.instances[begin:end], column)

	left, right := b.left, b.right
	left.reset()
	right.copyFrom(total)

	bestSplit.featureIndex = q
	h := len(sorted)
	for k := 0; k < h-1; k++ {
		ind := sorted[k]
		left.add(b.labels.AtVec(ind), b.classIndex[ind], b.weights[ind])
		right.sub(b.labels.AtVec(ind), b.classIndex[ind], b.weights[ind])

		current, next := column(ind), column(sorted[k+1])
		if current == next {
			continue
		}
		if left.count < b.params.MinLeaf || right.count < b.params.MinLeaf {
			continue
		}
		score := left.weight*left.value() + right.weight*right.value()
		if !bestSplit.validSplit || score < bestSplit.score {
			bestSplit.validSplit = true
			bestSplit.score = score
			bestSplit.threshold = splitThreshold(current, next)
		}
	}
	return
}

//splitThreshold returns a threshold t with current < t <= next. The midpoint of adjacent
//floats rounds back to current, and the sum of two large values overflows; next is used then.
func splitThreshold(current, next float64) float64 {
	thr := (current + next) / 2
	if thr <= current || thr > next {
		return next
	}
	return thr
}

//theBestSplit scans the candidate features of a node and selects the best split among them.
func (b *treeBuilder) theBestSplit(begin, end int, total *impurity) *BestSplit {
	var best *BestSplit
	for _, q := range b.candidateFeatures() {
		current := b.scanForSplit(begin, end, q, total)
		if current.validSplit && (best == nil || current.score < best.score) {
			cp := current
			best = &cp
		}
	}
	if best == nil {
		return nil
	}
	if total.weight > 0 {
		best.impurityDecrease = total.value() - best.score/total.weight
	}
	if best.impurityDecrease <= 0 {
		return nil
	}
	return best
}

//candidateFeatures draws MaxFeatures features without replacement, all features when MaxFeatures is not set.
func (b *treeBuilder) candidateFeatures() []int {
	_, w := b.features.Dims()
	if b.params.MaxFeatures <= 0 || b.params.MaxFeatures >= w {
		all := make([]int, w)
		for q := range all {
			all[q] = q
		}
		return all
	}
	return b.rng.Perm(w)[:b.params.MaxFeatures]
}
