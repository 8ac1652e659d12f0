package rfv

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

//Ownership tells whether a chain slot refers to the caller's visitor or owns a copy of it.
type Ownership int

const (
	Borrowed Ownership = iota
	Owned
)

func (o Ownership) String() string {
	if o == Owned {
		return "owned"
	}
	return "borrowed"
}

//Hook names a lifecycle callback.
type Hook int

const (
	HookBeforeTraining Hook = iota
	HookBeforeTree
	HookAfterSplit
	HookAfterTree
	HookAfterTraining
	numHooks
)

var hookNames = [numHooks]string{"before_training", "before_tree", "after_split", "after_tree", "after_training"}

func (h Hook) String() string {
	if h < 0 || h >= numHooks {
		return fmt.Sprintf("hook(%d)", int(h))
	}
	return hookNames[h]
}

//SlotStats counts, per hook, how often a slot's visitor ran and how often it was skipped
//because the visitor was inactive.
type SlotStats struct {
	fired, skipped [numHooks]int
}

func (s SlotStats) Fired(h Hook) int   { return s.fired[h] }
func (s SlotStats) Skipped(h Hook) int { return s.skipped[h] }

type phase int

const (
	phaseBuilt phase = iota
	phaseTraining
	phaseDone
	phaseForked
	phaseInTree
	phaseTreeDone
)

// lifecycle is shared by all nodes of one chain.
type lifecycle struct {
	head   *Chain
	parent *Chain // nil for the original chain
	tree   int
	phase  phase
	forks  atomic.Int64
	log    zerolog.Logger
}

//Chain is one node of an ordered visitor pipeline: a visitor slot and the rest of the chain.
//The original chain borrows the caller's visitors; a fork owns a clone of each of them.
type Chain struct {
	visitor   Visitor
	ownership Ownership
	stats     SlotStats
	next      *Chain
	life      *lifecycle
}

//Build assembles a chain whose traversal order equals the order of visitors.
//Visitors must be distinct pointers; the chain borrows them for the whole training run.
func Build(visitors ...Visitor) (*Chain, error) {
	if len(visitors) == 0 {
		return nil, ErrEmptyChain
	}

	seen := make(map[Visitor]int, len(visitors))
	for ind, v := range visitors {
		if v == nil {
			return nil, fmt.Errorf("%w at position %d", ErrNilVisitor, ind)
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer {
			return nil, fmt.Errorf("%w: position %d holds %T", ErrNotReference, ind, v)
		}
		if rv.IsNil() {
			return nil, fmt.Errorf("%w at position %d", ErrNilVisitor, ind)
		}
		if prev, ok := seen[v]; ok {
			return nil, fmt.Errorf("%w: positions %d and %d", ErrDuplicateVisitor, prev, ind)
		}
		seen[v] = ind
	}

	life := &lifecycle{tree: -1, phase: phaseBuilt, log: zerolog.Nop()}
	var next *Chain
	for ind := len(visitors) - 1; ind >= 0; ind-- {
		next = &Chain{visitor: visitors[ind], ownership: Borrowed, next: next, life: life}
	}
	life.head = next
	return next, nil
}

//SetLogger sets the sink for chain diagnostics. Forks taken afterwards inherit it.
func (c *Chain) SetLogger(log zerolog.Logger) *Chain {
	c.life.log = log
	return c
}

//Visitor returns the visitor held by this node.
func (c *Chain) Visitor() Visitor { return c.visitor }

//Ownership returns the storage discipline of this node's slot.
func (c *Chain) Ownership() Ownership { return c.ownership }

//Next returns the remainder of the chain, nil after the last node.
func (c *Chain) Next() *Chain { return c.next }

//Stats returns the dispatch counters of this node.
func (c *Chain) Stats() SlotStats { return c.stats }

//Tree returns the fork ordinal of a per-tree chain, -1 for the original chain.
func (c *Chain) Tree() int { return c.life.tree }

//IsFork reports whether the chain is a per-tree copy.
func (c *Chain) IsFork() bool { return c.life.parent != nil }

//Len is the number of nodes from c to the end of the chain.
func (c *Chain) Len() int {
	n := 0
	for node := c; node != nil; node = node.next {
		n++
	}
	return n
}

//Visitors lists the visitors from c to the end of the chain.
func (c *Chain) Visitors() []Visitor {
	out := make([]Visitor, 0, c.Len())
	for node := c; node != nil; node = node.next {
		out = append(out, node.visitor)
	}
	return out
}

//Forks is the number of per-tree copies taken from the original chain so far.
func (c *Chain) Forks() int {
	return int(c.life.forks.Load())
}

func (c *Chain) fire(h Hook, call func(Visitor)) {
	for node := c; node != nil; node = node.next {
		if !node.visitor.IsActive() {
			node.stats.skipped[h]++
			c.life.log.Debug().Str("hook", h.String()).Str("visitor", fmt.Sprintf("%T", node.visitor)).Msg("inactive visitor skipped")
			continue
		}
		node.stats.fired[h]++
		call(node.visitor)
	}
}

func (c *Chain) violation(format string, args ...interface{}) error {
	err := fmt.Errorf("%w: %s", ErrLifecycle, fmt.Sprintf(format, args...))
	c.life.log.Error().Err(err).Int("tree", c.life.tree).Msg("visitor chain misuse")
	return err
}

func (c *Chain) expectOriginal(h Hook, want phase) error {
	if c.life.head != c {
		return c.violation("%s called on an inner chain node", h)
	}
	if c.life.parent != nil {
		return c.violation("%s called on the fork for tree %d", h, c.life.tree)
	}
	if c.life.phase != want {
		return c.violation("%s called out of order", h)
	}
	return nil
}

func (c *Chain) expectFork(h Hook, want phase) error {
	if c.life.head != c {
		return c.violation("%s called on an inner chain node", h)
	}
	if c.life.parent == nil {
		return c.violation("%s called on the original chain, fork it first", h)
	}
	if c.life.phase != want {
		switch c.life.phase {
		case phaseForked:
			return c.violation("%s called before before_tree on tree %d", h, c.life.tree)
		case phaseTreeDone:
			return c.violation("%s called after after_tree on tree %d", h, c.life.tree)
		}
		return c.violation("%s called twice on tree %d", h, c.life.tree)
	}
	return nil
}

//BeforeTraining dispatches once, before any tree is trained.
func (c *Chain) BeforeTraining() error {
	if err := c.expectOriginal(HookBeforeTraining, phaseBuilt); err != nil {
		return err
	}
	c.fire(HookBeforeTraining, func(v Visitor) { v.VisitBeforeTraining() })
	c.life.phase = phaseTraining
	return nil
}

//Fork returns a structurally identical chain whose slots own clones of the visitors.
//Forks are numbered in the order they are taken; that order is the tree order
//AfterTraining expects. Fork may be called from several goroutines.
func (c *Chain) Fork() (*Chain, error) {
	if c.life.head != c || c.life.parent != nil {
		return nil, c.violation("fork of a fork or of an inner node")
	}
	if c.life.phase != phaseTraining {
		return nil, c.violation("fork outside of training")
	}

	life := &lifecycle{parent: c, phase: phaseForked, log: c.life.log}
	var head, tail *Chain
	for node := c; node != nil; node = node.next {
		clone := node.visitor.Clone()
		if clone == nil {
			return nil, fmt.Errorf("%w: %T cloned to nil", ErrForeignCopy, node.visitor)
		}
		if reflect.TypeOf(clone) != reflect.TypeOf(node.visitor) {
			return nil, fmt.Errorf("%w: %T cloned to %T", ErrForeignCopy, node.visitor, clone)
		}
		if clone == node.visitor {
			return nil, fmt.Errorf("%w: %T.Clone returned the receiver", ErrForeignCopy, node.visitor)
		}
		copied := &Chain{visitor: clone, ownership: Owned, life: life}
		if head == nil {
			head = copied
		} else {
			tail.next = copied
		}
		tail = copied
	}
	life.head = head
	life.tree = int(c.life.forks.Add(1) - 1)
	return head, nil
}

//BeforeTree dispatches once per tree, after the bootstrap weights are final.
func (c *Chain) BeforeTree(weights []float64) error {
	if err := c.expectFork(HookBeforeTree, phaseForked); err != nil {
		return err
	}
	c.fire(HookBeforeTree, func(v Visitor) { v.VisitBeforeTree(weights) })
	c.life.phase = phaseInTree
	return nil
}

//AfterSplit dispatches once per committed node split.
func (c *Chain) AfterSplit(features mat.Matrix, labels mat.Vector, weights []float64, split Split, parent, left, right IndexRange) error {
	if err := c.expectFork(HookAfterSplit, phaseInTree); err != nil {
		return err
	}
	c.fire(HookAfterSplit, func(v Visitor) {
		v.VisitAfterSplit(features, labels, weights, split, parent, left, right)
	})
	return nil
}

//AfterTree dispatches once per tree, after the tree is fully grown.
func (c *Chain) AfterTree(forest Forest, features mat.Matrix, labels mat.Vector, weights []float64) error {
	if err := c.expectFork(HookAfterTree, phaseInTree); err != nil {
		return err
	}
	c.fire(HookAfterTree, func(v Visitor) { v.VisitAfterTree(forest, features, labels, weights) })
	c.life.phase = phaseTreeDone
	return nil
}

func (c *Chain) checkJoin(forks []*Chain) error {
	if taken := c.Forks(); len(forks) != taken {
		return c.violation("after_training got %d forks, %d were taken", len(forks), taken)
	}
	for ind, f := range forks {
		switch {
		case f == nil:
			return c.violation("fork %d is nil", ind)
		case f.life.head != f:
			return c.violation("element %d is an inner chain node", ind)
		case f.life.parent != c:
			return c.violation("element %d was not forked from this chain", ind)
		case f.life.tree != ind:
			return c.violation("element %d is the fork of tree %d", ind, f.life.tree)
		case f.life.phase != phaseTreeDone:
			return c.violation("tree %d has not finished", ind)
		}
	}
	return nil
}

//AfterTraining joins the per-tree forks back into the original chain. forks must be
//exactly the forks taken from c, in the order they were taken. Each visitor receives
//the list of its own per-tree copies; inactive visitors are skipped but the walk
//continues. Errors of individual visitors do not stop the walk and are returned joined.
func (c *Chain) AfterTraining(forks []*Chain, forest Forest, features mat.Matrix, labels mat.Vector) error {
	if err := c.expectOriginal(HookAfterTraining, phaseTraining); err != nil {
		return err
	}
	if err := c.checkJoin(forks); err != nil {
		return err
	}
	c.life.phase = phaseDone

	var errs []error
	rest := forks
	for node := c; node != nil; node = node.next {
		own := make([]Visitor, len(rest))
		nexts := make([]*Chain, len(rest))
		for t, f := range rest {
			if f == nil || reflect.TypeOf(f.visitor) != reflect.TypeOf(node.visitor) {
				return c.violation("fork %d does not mirror the chain structure", t)
			}
			own[t] = f.visitor
			nexts[t] = f.next
		}

		if node.visitor.IsActive() {
			node.stats.fired[HookAfterTraining]++
			if err := node.visitor.VisitAfterTraining(own, forest, features, labels); err != nil {
				c.life.log.Warn().Err(err).Str("visitor", fmt.Sprintf("%T", node.visitor)).Msg("after training failed")
				errs = append(errs, fmt.Errorf("%T: %w", node.visitor, err))
			}
		} else {
			node.stats.skipped[HookAfterTraining]++
		}
		rest = nexts
	}
	return errors.Join(errs...)
}
