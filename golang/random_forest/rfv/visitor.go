package rfv

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

//Kind tells whether a forest predicts class labels or real values.
type Kind int

const (
	Classification Kind = iota
	Regression
)

func (k Kind) String() string {
	switch k {
	case Classification:
		return "classification"
	case Regression:
		return "regression"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

//Forest is the read-only view of a trained forest that visitors may query.
//PredictTree returns a class label for classification forests and a value for regression forests.
type Forest interface {
	Kind() Kind
	NumTrees() int
	NumNodes(tree int) int
	PredictTree(tree int, sample []float64) float64
}

//Split describes a committed node split.
type Split struct {
	FeatureIndex int
	Threshold    float64
	// weighted impurity of the parent minus the weighted impurities of both children
	ImpurityDecrease float64
	Depth            int
}

//Visitor observes the training of a forest. Embed Base to get no-op defaults
//and the activation flag; a concrete visitor only overrides the hooks it needs
//and implements Clone.
type Visitor interface {
	VisitBeforeTraining()
	VisitBeforeTree(weights []float64)
	VisitAfterSplit(features mat.Matrix, labels mat.Vector, weights []float64, split Split, parent, left, right IndexRange)
	VisitAfterTree(forest Forest, features mat.Matrix, labels mat.Vector, weights []float64)
	// VisitAfterTraining receives the per-tree copies of this visitor in tree order.
	VisitAfterTraining(copies []Visitor, forest Forest, features mat.Matrix, labels mat.Vector) error

	IsActive() bool
	Activate()
	Deactivate()

	// Clone returns an independent copy of the visitor state. Forks own clones.
	Clone() Visitor
}

//Base implements every hook as a no-op. Visitors are active by default.
type Base struct {
	inactive bool
}

func (b *Base) VisitBeforeTraining()              {}
func (b *Base) VisitBeforeTree(weights []float64) {}
func (b *Base) VisitAfterSplit(mat.Matrix, mat.Vector, []float64, Split, IndexRange, IndexRange, IndexRange) {
}
func (b *Base) VisitAfterTree(Forest, mat.Matrix, mat.Vector, []float64) {}
func (b *Base) VisitAfterTraining([]Visitor, Forest, mat.Matrix, mat.Vector) error {
	return nil
}

//IsActive reports whether the visitor's own hooks fire.
func (b *Base) IsActive() bool { return !b.inactive }

//Activate enables the visitor's hooks.
func (b *Base) Activate() { b.inactive = false }

//Deactivate disables the visitor's hooks. The chain still forwards past it.
func (b *Base) Deactivate() { b.inactive = true }

//CopiesOf converts the per-tree copies handed to VisitAfterTraining into their concrete type.
func CopiesOf[V Visitor](copies []Visitor) ([]V, error) {
	out := make([]V, len(copies))
	for i, c := range copies {
		v, ok := c.(V)
		if !ok {
			return nil, fmt.Errorf("%w: copy %d is %T", ErrForeignCopy, i, c)
		}
		out[i] = v
	}
	return out, nil
}
