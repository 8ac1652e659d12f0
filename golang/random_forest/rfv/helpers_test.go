package rfv

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// fakeForest answers PredictTree with a fixed value per tree.
type fakeForest struct {
	kind        Kind
	predictions []float64
	nodes       []int
}

func (f *fakeForest) Kind() Kind    { return f.kind }
func (f *fakeForest) NumTrees() int { return len(f.predictions) }
func (f *fakeForest) NumNodes(tree int) int {
	if f.nodes == nil {
		return 1
	}
	return f.nodes[tree]
}
func (f *fakeForest) PredictTree(tree int, _ []float64) float64 { return f.predictions[tree] }

// recorder appends "name:hook" to a shared journal and remembers the first weight it saw.
type recorder struct {
	Base

	name    string
	journal *[]string

	payload float64
	got     []float64
}

func newRecorder(name string, journal *[]string) *recorder {
	return &recorder{name: name, journal: journal}
}

func (r *recorder) note(h Hook) {
	if r.journal != nil {
		*r.journal = append(*r.journal, fmt.Sprintf("%s:%s", r.name, h))
	}
}

func (r *recorder) Clone() Visitor {
	return &recorder{Base: r.Base, name: r.name, journal: r.journal}
}

func (r *recorder) VisitBeforeTraining() { r.note(HookBeforeTraining) }

func (r *recorder) VisitBeforeTree(weights []float64) {
	r.note(HookBeforeTree)
	if len(weights) > 0 {
		r.payload = weights[0]
	}
}

func (r *recorder) VisitAfterSplit(mat.Matrix, mat.Vector, []float64, Split, IndexRange, IndexRange, IndexRange) {
	r.note(HookAfterSplit)
}

func (r *recorder) VisitAfterTree(Forest, mat.Matrix, mat.Vector, []float64) {
	r.note(HookAfterTree)
}

func (r *recorder) VisitAfterTraining(copies []Visitor, _ Forest, _ mat.Matrix, _ mat.Vector) error {
	r.note(HookAfterTraining)
	own, err := CopiesOf[*recorder](copies)
	if err != nil {
		return err
	}
	r.got = make([]float64, len(own))
	for t, c := range own {
		r.got[t] = c.payload
	}
	return nil
}

// tally is a second visitor type; it counts the splits of its tree.
type tally struct {
	Base

	splits int
	totals []int
	err    error
}

func (c *tally) Clone() Visitor { return &tally{Base: c.Base, err: c.err} }

func (c *tally) VisitAfterSplit(mat.Matrix, mat.Vector, []float64, Split, IndexRange, IndexRange, IndexRange) {
	c.splits++
}

func (c *tally) VisitAfterTraining(copies []Visitor, _ Forest, _ mat.Matrix, _ mat.Vector) error {
	own, err := CopiesOf[*tally](copies)
	if err != nil {
		return err
	}
	c.totals = make([]int, len(own))
	for t, o := range own {
		c.totals[t] = o.splits
	}
	return c.err
}

// valueVisitor implements Visitor on a value receiver.
type valueVisitor struct{}

func (valueVisitor) VisitBeforeTraining()      {}
func (valueVisitor) VisitBeforeTree([]float64) {}
func (valueVisitor) VisitAfterSplit(mat.Matrix, mat.Vector, []float64, Split, IndexRange, IndexRange, IndexRange) {
}
func (valueVisitor) VisitAfterTree(Forest, mat.Matrix, mat.Vector, []float64) {}
func (valueVisitor) VisitAfterTraining([]Visitor, Forest, mat.Matrix, mat.Vector) error {
	return nil
}
func (valueVisitor) IsActive() bool { return true }
func (valueVisitor) Activate()      {}
func (valueVisitor) Deactivate()    {}
func (valueVisitor) Clone() Visitor { return valueVisitor{} }

// testData is a 4x1 dataset shared by the chain tests.
func testData() (*mat.Dense, *mat.VecDense) {
	return mat.NewDense(4, 1, []float64{1, 2, 3, 4}), mat.NewVecDense(4, []float64{0, 1, 1, 0})
}

// runTree drives one fork through a tree with the given weights and number of splits.
func runTree(t *testing.T, fork *Chain, forest Forest, weights []float64, splits int) {
	t.Helper()
	features, labels := testData()
	instances := []int{0, 1, 2, 3}
	require.NoError(t, fork.BeforeTree(weights))
	for s := 0; s < splits; s++ {
		require.NoError(t, fork.AfterSplit(features, labels, weights, Split{Depth: s},
			NewIndexRange(instances, 0, 4), NewIndexRange(instances, 0, 2), NewIndexRange(instances, 2, 4)))
	}
	require.NoError(t, fork.AfterTree(forest, features, labels, weights))
}
