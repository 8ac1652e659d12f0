package rfv

import (
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

//TreeSummary describes one grown tree.
type TreeSummary struct {
	Tree     int `json:"tree"`
	InBag    int `json:"in_bag"`
	Splits   int `json:"splits"`
	MaxDepth int `json:"max_depth"`
	Nodes    int `json:"nodes"`
}

//TreeStats collects a TreeSummary per tree.
type TreeStats struct {
	Base

	log zerolog.Logger

	current TreeSummary

	Trees []TreeSummary
}

func NewTreeStats(log zerolog.Logger) *TreeStats {
	return &TreeStats{log: log}
}

func (s *TreeStats) Clone() Visitor {
	cp := &TreeStats{Base: s.Base, log: s.log, current: s.current}
	return cp
}

//Current returns the summary recorded on this copy.
func (s *TreeStats) Current() TreeSummary {
	return s.current
}

func (s *TreeStats) VisitBeforeTree(weights []float64) {
	s.current = TreeSummary{}
	for _, w := range weights {
		if w > 0 {
			s.current.InBag++
		}
	}
}

func (s *TreeStats) VisitAfterSplit(_ mat.Matrix, _ mat.Vector, _ []float64, split Split, _, _, _ IndexRange) {
	s.current.Splits++
	if split.Depth+1 > s.current.MaxDepth {
		s.current.MaxDepth = split.Depth + 1
	}
}

// the forest handed to after_tree holds only the tree that was just grown
func (s *TreeStats) VisitAfterTree(forest Forest, _ mat.Matrix, _ mat.Vector, _ []float64) {
	if forest != nil && forest.NumTrees() > 0 {
		s.current.Nodes = forest.NumNodes(0)
	}
}

func (s *TreeStats) VisitAfterTraining(copies []Visitor, _ Forest, _ mat.Matrix, _ mat.Vector) error {
	trees, err := CopiesOf[*TreeStats](copies)
	if err != nil {
		return err
	}
	s.Trees = make([]TreeSummary, len(trees))
	nodes := 0
	for t, tr := range trees {
		s.Trees[t] = tr.current
		s.Trees[t].Tree = t
		nodes += tr.current.Nodes
	}
	s.log.Debug().Int("trees", len(trees)).Int("nodes", nodes).Msg("tree statistics collected")
	return nil
}
