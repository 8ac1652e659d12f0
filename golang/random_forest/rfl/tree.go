package rfl

import (
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

//TreeNode is a node of a tree. Tree is stored in an array. LeftIndex and RightIndex are equal to -1
//when the current node is a leaf otherwise they contain array indices of children.
//A leaf node contains LeafIndex that is an index of the LeafNodes array.
type TreeNode struct {
	TreeNodeId            int
	FeatureNumber         int
	Threshold             float64
	LeftIndex, RightIndex int // -1, -1 if it is a leaf
	LeafIndex             int // -1 if it is a non-leaf tree node
	NumberOfObjects       int
	Impurity              float64
}

//GraphDescription returns the description of a tree node for tree rendering as a graph
func (node TreeNode) GraphDescription() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("#", node.NumberOfObjects))
	sb.WriteString(fmt.Sprintln("id: ", node.TreeNodeId))
	sb.WriteString(fmt.Sprintln("impurity: ", node.Impurity))
	sb.WriteString(fmt.Sprintf("f_%d < %6.5f", node.FeatureNumber, node.Threshold))
	return sb.String()
}

func NewTreeNode() TreeNode {
	return TreeNode{0, -1, 0, -1, -1, -1, 0, 0}
}

//IsLeaf returns whether this node is a LeafNode.
func (node TreeNode) IsLeaf() bool {
	return node.LeafIndex != -1
}

//LeafNode stores the prediction of a leaf: the majority class or the mean value of its samples.
type LeafNode struct {
	LeafNodeId      int
	Prediction      float64
	NumberOfObjects int
	WeightSum       float64
}

//GraphDescription returns the description of a leaf node for tree rendering as a graph
func (node LeafNode) GraphDescription() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("id: ", node.LeafNodeId))
	sb.WriteString(fmt.Sprintf("%6.4g\n", node.Prediction))
	sb.WriteString(fmt.Sprintln("#", node.NumberOfObjects))
	return sb.String()
}

//OneTree describes one tree of a forest.
type OneTree struct {
	TreeNodes []TreeNode
	LeafNodes []LeafNode
}

//PredictSample walks the tree down to a leaf.
func (oneTree OneTree) PredictSample(sample []float64) float64 {
	ind := 0
	for oneTree.TreeNodes[ind].LeafIndex == -1 {
		if sample[oneTree.TreeNodes[ind].FeatureNumber] < oneTree.TreeNodes[ind].Threshold {
			ind = oneTree.TreeNodes[ind].LeftIndex
		} else {
			ind = oneTree.TreeNodes[ind].RightIndex
		}
	}
	return oneTree.LeafNodes[oneTree.TreeNodes[ind].LeafIndex].Prediction
}

//validate checks the node links: children come after their parent, leaves point into LeafNodes
//and split features exist. PredictSample relies on them.
func (oneTree OneTree) validate(nFeatures int) error {
	if len(oneTree.TreeNodes) == 0 {
		return fmt.Errorf("%w: tree without nodes", ErrShapeMismatch)
	}
	n := len(oneTree.TreeNodes)
	for ind, node := range oneTree.TreeNodes {
		if node.IsLeaf() {
			if node.LeafIndex < 0 || node.LeafIndex >= len(oneTree.LeafNodes) {
				return fmt.Errorf("%w: node %d points to leaf %d of %d", ErrShapeMismatch, ind, node.LeafIndex, len(oneTree.LeafNodes))
			}
			continue
		}
		if node.LeftIndex <= ind || node.LeftIndex >= n || node.RightIndex <= ind || node.RightIndex >= n {
			return fmt.Errorf("%w: node %d has children %d and %d of %d nodes", ErrShapeMismatch, ind, node.LeftIndex, node.RightIndex, n)
		}
		if node.FeatureNumber < 0 || node.FeatureNumber >= nFeatures {
			return fmt.Errorf("%w: node %d splits feature %d of %d", ErrShapeMismatch, ind, node.FeatureNumber, nFeatures)
		}
	}
	return nil
}

//GetLeafDescription returns the description of a leaf node
func (oneTree OneTree) GetLeafDescription(ind int) string {
	return oneTree.LeafNodes[oneTree.TreeNodes[ind].LeafIndex].GraphDescription()
}

//GetNodeDescription returns the description of a split node
func (oneTree OneTree) GetNodeDescription(ind int) string {
	return oneTree.TreeNodes[ind].GraphDescription()
}

func recurrentDraw(g *cgraph.Graph, tree OneTree, nodeNumber int, parentNode *cgraph.Node) error {
	currentNode, err := g.CreateNode(fmt.Sprint(tree.TreeNodes[nodeNumber].TreeNodeId))
	if err != nil {
		return err
	}

	if parentNode != nil {
		if _, err := g.CreateEdge("", parentNode, currentNode); err != nil {
			return err
		}
	}

	if tree.TreeNodes[nodeNumber].IsLeaf() {
		currentNode.Set("label", tree.GetLeafDescription(nodeNumber))
		currentNode.Set("shape", "box")
		return nil
	}
	currentNode.Set("label", tree.GetNodeDescription(nodeNumber))
	if err := recurrentDraw(g, tree, tree.TreeNodes[nodeNumber].LeftIndex, currentNode); err != nil {
		return err
	}
	return recurrentDraw(g, tree, tree.TreeNodes[nodeNumber].RightIndex, currentNode)
}

//DrawGraph lays the tree out as a graphviz graph. The caller closes both returned values.
func (oneTree OneTree) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph, error) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	if err != nil {
		graphViz.Close()
		return nil, nil, err
	}

	if err := recurrentDraw(graph, oneTree, 0, nil); err != nil {
		graph.Close()
		graphViz.Close()
		return nil, nil, err
	}
	return graphViz, graph, nil
}
