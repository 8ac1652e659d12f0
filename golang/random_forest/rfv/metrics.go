package rfv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/mat"
)

//Metrics exports training counters to prometheus. Forks share the collectors,
//which are safe for concurrent use; the visitor keeps no other state.
type Metrics struct {
	Base

	TreesTotal    prometheus.Counter   // trees grown
	SplitsTotal   prometheus.Counter   // committed node splits
	NodesPerTree  prometheus.Histogram // nodes of each grown tree
	InBagFraction prometheus.Histogram // share of samples drawn into each bootstrap sample
	OOBError      prometheus.Gauge     // last out-of-bag error, set by ObserveOOB
}

//NewMetrics registers the training metrics on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		TreesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "random_forest_trees_total",
			Help: "Number of trees grown",
		}),
		SplitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "random_forest_splits_total",
			Help: "Number of committed node splits",
		}),
		NodesPerTree: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "random_forest_tree_nodes",
			Help:    "Number of nodes per grown tree",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}),
		InBagFraction: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "random_forest_in_bag_fraction",
			Help:    "Fraction of samples in the bootstrap sample of a tree",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		OOBError: factory.NewGauge(prometheus.GaugeOpts{
			Name: "random_forest_oob_error",
			Help: "Out-of-bag error of the last trained forest",
		}),
	}
}

func (m *Metrics) Clone() Visitor {
	cp := *m
	return &cp
}

func (m *Metrics) VisitBeforeTree(weights []float64) {
	if len(weights) == 0 {
		return
	}
	inBag := 0
	for _, w := range weights {
		if w > 0 {
			inBag++
		}
	}
	m.InBagFraction.Observe(float64(inBag) / float64(len(weights)))
}

func (m *Metrics) VisitAfterSplit(mat.Matrix, mat.Vector, []float64, Split, IndexRange, IndexRange, IndexRange) {
	m.SplitsTotal.Inc()
}

func (m *Metrics) VisitAfterTree(forest Forest, _ mat.Matrix, _ mat.Vector, _ []float64) {
	m.TreesTotal.Inc()
	if forest != nil && forest.NumTrees() > 0 {
		m.NodesPerTree.Observe(float64(forest.NumNodes(0)))
	}
}

//ObserveOOB publishes an out-of-bag estimate. Undefined estimates are not published.
func (m *Metrics) ObserveOOB(result OOBResult) {
	if result.Defined {
		m.OOBError.Set(result.Error)
	}
}
