package rfl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// f_1 < 0.5 ? 10 : (f_0 < 2 ? 20 : 30)
func handMadeTree() OneTree {
	root := NewTreeNode()
	root.FeatureNumber, root.Threshold, root.LeftIndex, root.RightIndex = 1, 0.5, 1, 2
	root.NumberOfObjects = 6

	left := NewTreeNode()
	left.TreeNodeId, left.LeafIndex = 1, 0

	right := NewTreeNode()
	right.TreeNodeId, right.FeatureNumber, right.Threshold, right.LeftIndex, right.RightIndex = 2, 0, 2, 3, 4

	rightLeft := NewTreeNode()
	rightLeft.TreeNodeId, rightLeft.LeafIndex = 3, 1

	rightRight := NewTreeNode()
	rightRight.TreeNodeId, rightRight.LeafIndex = 4, 2

	return OneTree{
		TreeNodes: []TreeNode{root, left, right, rightLeft, rightRight},
		LeafNodes: []LeafNode{
			{LeafNodeId: 0, Prediction: 10, NumberOfObjects: 2},
			{LeafNodeId: 1, Prediction: 20, NumberOfObjects: 2},
			{LeafNodeId: 2, Prediction: 30, NumberOfObjects: 2},
		},
	}
}

func TestPredictSample(t *testing.T) {
	tree := handMadeTree()
	assert.Equal(t, 10.0, tree.PredictSample([]float64{5, 0}))
	assert.Equal(t, 20.0, tree.PredictSample([]float64{1, 1}))
	assert.Equal(t, 30.0, tree.PredictSample([]float64{2, 1}))
}

func TestNewTreeNodeIsEmptyLeafless(t *testing.T) {
	node := NewTreeNode()
	assert.False(t, node.IsLeaf())
	assert.Equal(t, -1, node.LeftIndex)
	assert.Equal(t, -1, node.RightIndex)
	assert.Equal(t, -1, node.FeatureNumber)
}

func TestDescriptions(t *testing.T) {
	tree := handMadeTree()
	assert.Contains(t, tree.GetNodeDescription(0), "f_1 < 0.50000")
	assert.Contains(t, tree.GetLeafDescription(3), "20")
}

func TestDrawGraph(t *testing.T) {
	graphViz, graph, err := handMadeTree().DrawGraph()
	require.NoError(t, err)
	defer graphViz.Close()
	defer graph.Close()
	assert.NotNil(t, graph)
}

func TestValidateTree(t *testing.T) {
	require.NoError(t, handMadeTree().validate(2))

	tests := []struct {
		name   string
		damage func(tree *OneTree)
	}{
		{"no nodes", func(tree *OneTree) { tree.TreeNodes = nil }},
		{"leaf out of range", func(tree *OneTree) { tree.TreeNodes[3].LeafIndex = 3 }},
		{"missing leaves", func(tree *OneTree) { tree.LeafNodes = tree.LeafNodes[:1] }},
		{"child out of range", func(tree *OneTree) { tree.TreeNodes[2].RightIndex = 5 }},
		{"child loops back", func(tree *OneTree) { tree.TreeNodes[2].LeftIndex = 0 }},
		{"split node without children", func(tree *OneTree) { tree.TreeNodes[1].LeafIndex = -1 }},
		{"unknown feature", func(tree *OneTree) { tree.TreeNodes[0].FeatureNumber = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := handMadeTree()
			tt.damage(&tree)
			assert.ErrorIs(t, tree.validate(2), ErrShapeMismatch)
		})
	}
}
