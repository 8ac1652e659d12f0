package rfv

import (
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

//Progress logs the course of the training.
type Progress struct {
	Base

	log     zerolog.Logger
	started time.Time
	splits  int
}

func NewProgress(log zerolog.Logger) *Progress {
	return &Progress{log: log}
}

func (p *Progress) Clone() Visitor {
	cp := *p
	return &cp
}

func (p *Progress) VisitBeforeTraining() {
	p.started = time.Now()
	p.log.Info().Msg("training started")
}

func (p *Progress) VisitBeforeTree([]float64) {
	p.splits = 0
}

func (p *Progress) VisitAfterSplit(mat.Matrix, mat.Vector, []float64, Split, IndexRange, IndexRange, IndexRange) {
	p.splits++
}

func (p *Progress) VisitAfterTree(forest Forest, _ mat.Matrix, _ mat.Vector, _ []float64) {
	nodes := 0
	if forest != nil && forest.NumTrees() > 0 {
		nodes = forest.NumNodes(0)
	}
	p.log.Debug().Int("splits", p.splits).Int("nodes", nodes).Msg("tree grown")
}

func (p *Progress) VisitAfterTraining(copies []Visitor, forest Forest, _ mat.Matrix, _ mat.Vector) error {
	p.log.Info().
		Int("trees", len(copies)).
		Str("kind", forest.Kind().String()).
		Dur("elapsed", time.Since(p.started)).
		Msg("training finished")
	return nil
}
