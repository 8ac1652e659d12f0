package rfv

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

//SplitImportance measures variable importance as the mean decrease of impurity:
//every split credits its feature with the weighted impurity decrease it achieved.
type SplitImportance struct {
	Base

	nFeatures int

	// per-tree state
	decrease []float64

	// PerTree is a (trees x features) cube of raw impurity decreases, filled after training.
	PerTree *tensor.Dense
	// Importances are the per-feature decreases summed over trees and normalized to sum to one.
	Importances []float64
}

//NewSplitImportance creates the visitor for a dataset with nFeatures columns.
func NewSplitImportance(nFeatures int) *SplitImportance {
	return &SplitImportance{nFeatures: nFeatures}
}

func (s *SplitImportance) Clone() Visitor {
	cp := &SplitImportance{Base: s.Base, nFeatures: s.nFeatures}
	if s.decrease != nil {
		cp.decrease = append([]float64(nil), s.decrease...)
	}
	return cp
}

//Decrease returns the impurity decreases recorded on this copy.
func (s *SplitImportance) Decrease() []float64 {
	return s.decrease
}

func (s *SplitImportance) VisitBeforeTree([]float64) {
	s.decrease = make([]float64, s.nFeatures)
}

func (s *SplitImportance) VisitAfterSplit(_ mat.Matrix, _ mat.Vector, weights []float64, split Split, parent, _, _ IndexRange) {
	if split.FeatureIndex < 0 || split.FeatureIndex >= len(s.decrease) {
		return
	}
	s.decrease[split.FeatureIndex] += split.ImpurityDecrease * parent.WeightSum(weights)
}

func (s *SplitImportance) VisitAfterTraining(copies []Visitor, _ Forest, features mat.Matrix, _ mat.Vector) error {
	trees, err := CopiesOf[*SplitImportance](copies)
	if err != nil {
		return err
	}
	if _, w := features.Dims(); w != s.nFeatures {
		return fmt.Errorf("%w: importance set up for %d features, dataset has %d", ErrShapeMismatch, s.nFeatures, w)
	}
	if len(trees) == 0 {
		s.Importances = make([]float64, s.nFeatures)
		return nil
	}

	s.PerTree = tensor.New(tensor.WithShape(len(trees), s.nFeatures), tensor.Of(tensor.Float64))
	for t, tr := range trees {
		if len(tr.decrease) != s.nFeatures {
			return fmt.Errorf("%w: tree %d has %d importance entries", ErrCopyMismatch, t, len(tr.decrease))
		}
		for f, val := range tr.decrease {
			if err := s.PerTree.SetAt(val, t, f); err != nil {
				return err
			}
		}
	}

	s.Importances = make([]float64, s.nFeatures)
	for t := range trees {
		for f := 0; f < s.nFeatures; f++ {
			val, err := s.PerTree.At(t, f)
			if err != nil {
				return err
			}
			s.Importances[f] += val.(float64)
		}
	}
	if total := floats.Sum(s.Importances); total > 0 {
		floats.Scale(1/total, s.Importances)
	}
	return nil
}
