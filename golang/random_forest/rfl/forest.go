package rfl

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path"
	"runtime"

	"github.com/goccy/go-graphviz"
	"github.com/rs/zerolog"
	"github.com/tarstars/bagged_forest/golang/random_forest/rfv"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//Forest is the model class. It implements rfv.Forest so visitors can query it.
type Forest struct {
	Task      rfv.Kind
	Classes   []float64 `json:",omitempty"`
	NFeatures int
	Trees     []OneTree
}

//ForestParams collect arguments required to train a forest.
type ForestParams struct {
	Dataset     Dataset
	Kind        rfv.Kind
	NTrees      int
	MaxDepth    int // 0 means unlimited
	MinLeaf     int // minimal number of distinct samples in a leaf, 1 when not set
	MaxFeatures int // features examined per split, all when not set
	Seed        int64
	ThreadsNum  int // GOMAXPROCS when not set
	NoBootstrap bool

	// ClassWeights scales the bootstrap weight of every sample of a class. Missing classes weigh 1.
	ClassWeights map[float64]float64

	// Visitors observe training in the given order. Nil means no observation.
	Visitors []rfv.Visitor
	Logger   zerolog.Logger
}

func (params ForestParams) withDefaults(nFeatures int) (ForestParams, error) {
	switch {
	case params.NTrees <= 0:
		return params, fmt.Errorf("%w: %d trees", ErrParams, params.NTrees)
	case params.MinLeaf < 0:
		return params, fmt.Errorf("%w: min leaf %d", ErrParams, params.MinLeaf)
	case params.MaxFeatures < 0 || params.MaxFeatures > nFeatures:
		return params, fmt.Errorf("%w: max features %d of %d", ErrParams, params.MaxFeatures, nFeatures)
	case params.Kind != rfv.Classification && params.Kind != rfv.Regression:
		return params, fmt.Errorf("%w: task %v", ErrParams, params.Kind)
	case params.Kind == rfv.Regression && len(params.ClassWeights) > 0:
		return params, fmt.Errorf("%w: class weights need a classification task", ErrParams)
	}
	for class, w := range params.ClassWeights {
		if w < 0 {
			return params, fmt.Errorf("%w: negative weight %g of class %g", ErrParams, w, class)
		}
	}
	if params.MinLeaf == 0 {
		params.MinLeaf = 1
	}
	if params.ThreadsNum <= 0 {
		params.ThreadsNum = runtime.GOMAXPROCS(0)
	}
	return params, nil
}

// trainer holds the state shared by the tree workers of one training run.
type trainer struct {
	params       ForestParams
	forest       *Forest
	classIndex   []int
	classWeights []float64
	forks        []*rfv.Chain
}

//Train grows a forest. Trees are grown in parallel, each observed by its own fork of the
//visitor chain. When the visitors were joined and one of them failed, the trained forest is
//returned together with the joined visitor error. On any other error, including the
//cancellation of ctx, no forest is returned and the visitors are not joined.
func Train(ctx context.Context, params ForestParams) (*Forest, error) {
	h, w, err := params.Dataset.validatedDimensions()
	if err != nil {
		return nil, err
	}
	if params, err = params.withDefaults(w); err != nil {
		return nil, err
	}
	log := params.Logger

	tr := &trainer{
		params:     params,
		forest:     &Forest{Task: params.Kind, NFeatures: w, Trees: make([]OneTree, params.NTrees)},
		classIndex: make([]int, h),
	}
	if params.Kind == rfv.Classification {
		tr.forest.Classes = params.Dataset.Classes()
		position := make(map[float64]int, len(tr.forest.Classes))
		for c, class := range tr.forest.Classes {
			position[class] = c
		}
		for i := range tr.classIndex {
			tr.classIndex[i] = position[params.Dataset.Labels.AtVec(i)]
		}
		if params.ClassWeights != nil {
			tr.classWeights = make([]float64, len(tr.forest.Classes))
			for c, class := range tr.forest.Classes {
				tr.classWeights[c] = 1
				if cw, ok := params.ClassWeights[class]; ok {
					tr.classWeights[c] = cw
				}
			}
		}
	}

	var chain *rfv.Chain
	if len(params.Visitors) > 0 {
		if chain, err = rfv.Build(params.Visitors...); err != nil {
			return nil, err
		}
		chain.SetLogger(log)
		if err = chain.BeforeTraining(); err != nil {
			return nil, err
		}
		tr.forks = make([]*rfv.Chain, params.NTrees)
		for t := range tr.forks {
			if tr.forks[t], err = chain.Fork(); err != nil {
				return nil, err
			}
		}
	}

	log.Info().
		Str("task", params.Kind.String()).
		Int("trees", params.NTrees).
		Int("samples", h).
		Int("features", w).
		Int("threads", params.ThreadsNum).
		Msg("training forest")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(params.ThreadsNum)
	for t := 0; t < params.NTrees; t++ {
		t := t
		g.Go(func() error {
			return tr.grow(gctx, t)
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("training aborted")
		return nil, err
	}

	if chain != nil {
		ds := params.Dataset
		if err := chain.AfterTraining(tr.forks, tr.forest, ds.Features, ds.Labels); err != nil {
			return tr.forest, err
		}
	}
	return tr.forest, nil
}

func (tr *trainer) grow(ctx context.Context, t int) error {
	ds := tr.params.Dataset
	h, _ := ds.Features.Dims()
	rng := rand.New(rand.NewSource(tr.params.Seed + int64(t)))
	weights := bootstrapWeights(rng, h, tr.classIndex, tr.classWeights, tr.params.NoBootstrap)

	var fork *rfv.Chain
	if tr.forks != nil {
		fork = tr.forks[t]
		if err := fork.BeforeTree(weights); err != nil {
			return err
		}
	}

	tree := &OneTree{}
	b := &treeBuilder{
		ctx:        ctx,
		params:     &tr.params,
		kind:       tr.params.Kind,
		features:   ds.Features,
		labels:     ds.Labels,
		weights:    weights,
		classes:    tr.forest.Classes,
		classIndex: tr.classIndex,
		instances:  inBagInstances(weights),
		rng:        rng,
		fork:       fork,
		tree:       tree,
		left:       newImpurity(tr.params.Kind, len(tr.forest.Classes)),
		right:      newImpurity(tr.params.Kind, len(tr.forest.Classes)),
	}
	if _, err := b.buildTree(0, len(b.instances), 0); err != nil {
		return err
	}
	tr.forest.Trees[t] = *tree

	if fork != nil {
		view := &Forest{Task: tr.forest.Task, Classes: tr.forest.Classes, NFeatures: tr.forest.NFeatures, Trees: []OneTree{*tree}}
		if err := fork.AfterTree(view, ds.Features, ds.Labels, weights); err != nil {
			return err
		}
	}
	tr.params.Logger.Debug().Int("tree", t).Int("nodes", len(tree.TreeNodes)).Int("in_bag", len(b.instances)).Msg("tree grown")
	return nil
}

func (forest *Forest) Kind() rfv.Kind { return forest.Task }

func (forest *Forest) NumTrees() int { return len(forest.Trees) }

func (forest *Forest) NumNodes(tree int) int { return len(forest.Trees[tree].TreeNodes) }

func (forest *Forest) PredictTree(tree int, sample []float64) float64 {
	return forest.Trees[tree].PredictSample(sample)
}

//TreeView returns a forest made of the single tree with the given index.
func (forest *Forest) TreeView(tree int) *Forest {
	return &Forest{Task: forest.Task, Classes: forest.Classes, NFeatures: forest.NFeatures, Trees: forest.Trees[tree : tree+1]}
}

func (forest *Forest) treesUsed(features mat.Matrix, treesNumber *int) (int, error) {
	if len(forest.Trees) == 0 {
		return 0, ErrEmptyForest
	}
	if _, w := features.Dims(); w != forest.NFeatures {
		return 0, fmt.Errorf("%w: %d features, the forest was trained on %d", ErrShapeMismatch, w, forest.NFeatures)
	}
	n := len(forest.Trees)
	if treesNumber != nil {
		if *treesNumber <= 0 || *treesNumber > n {
			return 0, fmt.Errorf("%w: %d trees of %d", ErrParams, *treesNumber, n)
		}
		n = *treesNumber
	}
	return n, nil
}

//PredictValue infers the target: the majority vote of the trees for classification and
//their mean for regression. treesNumber limits the prediction to the first trees.
func (forest *Forest) PredictValue(features *mat.Dense, treesNumber *int) (*mat.VecDense, error) {
	n, err := forest.treesUsed(features, treesNumber)
	if err != nil {
		return nil, err
	}

	h, _ := features.Dims()
	prediction := mat.NewVecDense(h, nil)
	votes := make([]float64, n)
	for p := 0; p < h; p++ {
		sample := features.RawRowView(p)
		for t := 0; t < n; t++ {
			votes[t] = forest.Trees[t].PredictSample(sample)
		}
		if forest.Task == rfv.Classification {
			prediction.SetVec(p, rfv.MajorityVote(votes))
		} else {
			prediction.SetVec(p, stat.Mean(votes, nil))
		}
	}
	return prediction, nil
}

//PredictProba returns the fraction of trees voting for each class, one column per entry of Classes.
func (forest *Forest) PredictProba(features *mat.Dense, treesNumber *int) (*mat.Dense, error) {
	if forest.Task != rfv.Classification {
		return nil, fmt.Errorf("%w: class probabilities of a %v forest", ErrParams, forest.Task)
	}
	n, err := forest.treesUsed(features, treesNumber)
	if err != nil {
		return nil, err
	}

	position := make(map[float64]int, len(forest.Classes))
	for c, class := range forest.Classes {
		position[class] = c
	}
	h, _ := features.Dims()
	proba := mat.NewDense(h, len(forest.Classes), nil)
	for p := 0; p < h; p++ {
		sample := features.RawRowView(p)
		for t := 0; t < n; t++ {
			c := position[forest.Trees[t].PredictSample(sample)]
			proba.Set(p, c, proba.At(p, c)+1/float64(n))
		}
	}
	return proba, nil
}

//Save writes the model into a json file.
func (forest *Forest) Save(filename string) error {
	modelByteRepr, err := json.MarshalIndent(forest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, modelByteRepr, 0o644)
}

//LoadModel reads a model written by Save.
func LoadModel(filename string) (*Forest, error) {
	source, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	forest := &Forest{}
	if err := json.NewDecoder(source).Decode(forest); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", filename, err)
	}
	if len(forest.Trees) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, ErrEmptyForest)
	}
	for t, tree := range forest.Trees {
		if err := tree.validate(forest.NFeatures); err != nil {
			return nil, fmt.Errorf("%s: tree %d: %w", filename, t, err)
		}
	}
	return forest, nil
}

//RenderTrees draws every tree into picturesDirectory as <dumpPrefix>_<tree>.<figureType>.
func (forest *Forest) RenderTrees(dumpPrefix, figureType, picturesDirectory string) error {
	graphvizType, ok := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
	}[figureType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrFigureType, figureType)
	}

	for graphInd, currentTree := range forest.Trees {
		filename := fmt.Sprintf("%s_%05d.%s", dumpPrefix, graphInd, figureType)
		if err := renderTree(currentTree, graphvizType, path.Join(picturesDirectory, filename)); err != nil {
			return err
		}
	}
	return nil
}

func renderTree(tree OneTree, format graphviz.Format, filename string) error {
	graphViz, graph, err := tree.DrawGraph()
	if err != nil {
		return err
	}
	defer graphViz.Close()
	defer graph.Close()
	return graphViz.RenderFilename(graph, format, filename)
}
