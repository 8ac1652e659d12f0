package rfv

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//OOBResult is the out-of-bag error estimate of a forest.
type OOBResult struct {
	// Error is the misclassification rate for classification forests and the mean
	// squared residual for regression forests. It is NaN when Defined is false.
	Error float64
	// Defined is false when no sample was out of bag for any tree.
	Defined bool
	// Counted is the number of samples with at least one out-of-bag tree.
	Counted int
	Samples int
	// PerSample holds the aggregated out-of-bag prediction of every sample, NaN if it has none.
	PerSample []float64
}

//OOBError estimates the generalization error of a forest: every sample is put down
//the trees for which it was out of bag and the aggregated prediction is compared
//to its label.
type OOBError struct {
	Base

	log zerolog.Logger

	// per-tree state, filled on forks
	inBag []bool

	// result, filled on the original after training
	Result OOBResult
}

//NewOOBError creates an estimator that reports through log.
func NewOOBError(log zerolog.Logger) *OOBError {
	return &OOBError{log: log}
}

func (o *OOBError) Clone() Visitor {
	cp := *o
	if o.inBag != nil {
		cp.inBag = append([]bool(nil), o.inBag...)
	}
	cp.Result.PerSample = nil
	return &cp
}

//InBag returns the in-bag indicator recorded for the tree of this copy.
func (o *OOBError) InBag() []bool {
	return o.inBag
}

func (o *OOBError) VisitAfterTree(_ Forest, _ mat.Matrix, _ mat.Vector, weights []float64) {
	o.inBag = make([]bool, len(weights))
	for ind, w := range weights {
		o.inBag[ind] = w > 0
	}
}

func (o *OOBError) VisitAfterTraining(copies []Visitor, forest Forest, features mat.Matrix, labels mat.Vector) error {
	trees, err := CopiesOf[*OOBError](copies)
	if err != nil {
		return err
	}
	inBag := make([][]bool, len(trees))
	for t, tr := range trees {
		inBag[t] = tr.inBag
	}
	result, err := ComputeOOB(inBag, forest, features, labels)
	if err != nil {
		return err
	}
	o.Result = result

	if !result.Defined {
		o.log.Warn().Int("trees", len(trees)).Int("samples", result.Samples).Msg("out-of-bag error undefined, every sample is in bag for every tree")
		return nil
	}
	o.log.Info().
		Float64("oob_error", result.Error).
		Int("counted", result.Counted).
		Int("samples", result.Samples).
		Str("kind", forest.Kind().String()).
		Msg("out-of-bag error")
	return nil
}

//ComputeOOB computes the out-of-bag error from per-tree in-bag indicators.
//inBag[t][i] tells whether sample i was part of the bootstrap sample of tree t.
func ComputeOOB(inBag [][]bool, forest Forest, features mat.Matrix, labels mat.Vector) (OOBResult, error) {
	n, w := features.Dims()
	if labels.Len() != n {
		return OOBResult{}, fmt.Errorf("%w: %d labels for %d samples", ErrShapeMismatch, labels.Len(), n)
	}
	if len(inBag) != forest.NumTrees() {
		return OOBResult{}, fmt.Errorf("%w: %d per-tree copies for %d trees", ErrCopyMismatch, len(inBag), forest.NumTrees())
	}
	for t, bag := range inBag {
		if len(bag) != n {
			return OOBResult{}, fmt.Errorf("%w: tree %d recorded %d in-bag flags for %d samples", ErrCopyMismatch, t, len(bag), n)
		}
	}

	result := OOBResult{Samples: n, PerSample: make([]float64, n)}
	row := make([]float64, w)
	predictions := make([]float64, 0, len(inBag))
	errSum := 0.0

	for i := 0; i < n; i++ {
		predictions = predictions[:0]
		mat.Row(row, i, features)
		for t, bag := range inBag {
			if bag[i] {
				continue
			}
			predictions = append(predictions, forest.PredictTree(t, row))
		}
		if len(predictions) == 0 {
			result.PerSample[i] = math.NaN()
			continue
		}

		var aggregated float64
		if forest.Kind() == Classification {
			aggregated = MajorityVote(predictions)
			if aggregated != labels.AtVec(i) {
				errSum++
			}
		} else {
			aggregated = stat.Mean(predictions, nil)
			d := aggregated - labels.AtVec(i)
			errSum += d * d
		}
		result.PerSample[i] = aggregated
		result.Counted++
	}

	if result.Counted == 0 {
		result.Error = math.NaN()
		return result, nil
	}
	result.Defined = true
	result.Error = errSum / float64(result.Counted)
	return result, nil
}

//MajorityVote returns the most frequent label, the smallest one on ties. votes must not be empty.
func MajorityVote(votes []float64) float64 {
	counts := make(map[float64]int, len(votes))
	for _, v := range votes {
		counts[v]++
	}
	labels := make([]float64, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Float64s(labels)

	best, bestCount := labels[0], counts[labels[0]]
	for _, l := range labels[1:] {
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best
}
