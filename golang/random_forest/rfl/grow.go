package rfl

import (
	"context"
	"math/rand"

	"github.com/tarstars/bagged_forest/golang/random_forest/rfv"
	"gonum.org/v1/gonum/mat"
)

// treeBuilder grows one tree. Every tree gets its own builder, random source and chain fork.
type treeBuilder struct {
	ctx    context.Context
	params *ForestParams
	kind   rfv.Kind

	features   *mat.Dense
	labels     *mat.VecDense
	weights    []float64
	classes    []float64
	classIndex []int

	// in-bag samples; every node owns the contiguous block [begin, end)
	instances []int

	rng         *rand.Rand
	fork        *rfv.Chain
	tree        *OneTree
	left, right *impurity
}

//bootstrapWeights draws n samples with replacement. The weight of a sample is the
//number of times it was drawn multiplied by the weight of its class.
func bootstrapWeights(rng *rand.Rand, n int, classIndex []int, classWeights []float64, noBootstrap bool) []float64 {
	weights := make([]float64, n)
	if noBootstrap {
		for i := range weights {
			weights[i] = 1
		}
	} else {
		for draw := 0; draw < n; draw++ {
			weights[rng.Intn(n)]++
		}
	}
	if classWeights != nil {
		for i := range weights {
			weights[i] *= classWeights[classIndex[i]]
		}
	}
	return weights
}

func inBagInstances(weights []float64) []int {
	instances := make([]int, 0, len(weights))
	for ind, w := range weights {
		if w > 0 {
			instances = append(instances, ind)
		}
	}
	return instances
}

//partition moves the samples going left to the front of [begin, end) and returns the first right position.
func (b *treeBuilder) partition(begin, end int, split *BestSplit) int {
	mid := begin
	for k := begin; k < end; k++ {
		ind := b.instances[k]
		if b.features.At(ind, split.featureIndex) < split.threshold {
			b.instances[k], b.instances[mid] = b.instances[mid], b.instances[k]
			mid++
		}
	}
	return mid
}

//buildTree recurrently builds a tree node over the samples in [begin, end) and returns its index.
func (b *treeBuilder) buildTree(begin, end, depth int) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return -1, err
	}

	total := newImpurity(b.kind, len(b.classes))
	for _, ind := range b.instances[begin:end] {
		total.add(b.labels.AtVec(ind), b.classIndex[ind], b.weights[ind])
	}

	treeNodeId := len(b.tree.TreeNodes)
	currentTreeNode := NewTreeNode()
	currentTreeNode.TreeNodeId = treeNodeId
	currentTreeNode.NumberOfObjects = end - begin
	currentTreeNode.Impurity = total.value()

	depthLeft := b.params.MaxDepth <= 0 || depth < b.params.MaxDepth
	if depthLeft && end-begin >= 2*b.params.MinLeaf && currentTreeNode.Impurity > 0 {
		bestSplit := b.theBestSplit(begin, end, total)
		mid := begin
		if bestSplit != nil {
			mid = b.partition(begin, end, bestSplit)
		}
		// a split that leaves a child empty or under MinLeaf samples makes the node a leaf
		minLeaf := max(b.params.MinLeaf, 1)
		if bestSplit != nil && mid-begin >= minLeaf && end-mid >= minLeaf {
			currentTreeNode.FeatureNumber = bestSplit.featureIndex
			currentTreeNode.Threshold = bestSplit.threshold
			b.tree.TreeNodes = append(b.tree.TreeNodes, currentTreeNode)

			if b.fork != nil {
				split := rfv.Split{
					FeatureIndex:     bestSplit.featureIndex,
					Threshold:        bestSplit.threshold,
					ImpurityDecrease: bestSplit.impurityDecrease,
					Depth:            depth,
				}
				err := b.fork.AfterSplit(b.features, b.labels, b.weights, split,
					rfv.NewIndexRange(b.instances, begin, end),
					rfv.NewIndexRange(b.instances, begin, mid),
					rfv.NewIndexRange(b.instances, mid, end))
				if err != nil {
					return -1, err
				}
			}

			leftNodeId, err := b.buildTree(begin, mid, depth+1)
			if err != nil {
				return -1, err
			}
			b.tree.TreeNodes[treeNodeId].LeftIndex = leftNodeId

			rightNodeId, err := b.buildTree(mid, end, depth+1)
			if err != nil {
				return -1, err
			}
			b.tree.TreeNodes[treeNodeId].RightIndex = rightNodeId

			return treeNodeId, nil
		}
	}

	leafNodeId := len(b.tree.LeafNodes)
	currentTreeNode.LeafIndex = leafNodeId
	b.tree.TreeNodes = append(b.tree.TreeNodes, currentTreeNode)
	b.tree.LeafNodes = append(b.tree.LeafNodes, LeafNode{
		LeafNodeId:      leafNodeId,
		Prediction:      total.prediction(b.classes),
		NumberOfObjects: end - begin,
		WeightSum:       total.weight,
	})
	return treeNodeId, nil
}
