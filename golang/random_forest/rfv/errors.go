package rfv

import "errors"

var (
	ErrEmptyChain       = errors.New("visitor chain is empty")
	ErrNilVisitor       = errors.New("nil visitor")
	ErrNotReference     = errors.New("visitor must be passed by pointer")
	ErrDuplicateVisitor = errors.New("visitor appears twice in chain")

	// ErrLifecycle marks hooks called out of order or with a fork list that does not
	// match the forks taken from the chain.
	ErrLifecycle = errors.New("visitor lifecycle violation")

	ErrForeignCopy   = errors.New("per-tree copy has a foreign visitor type")
	ErrCopyMismatch  = errors.New("per-tree copies do not match the forest")
	ErrShapeMismatch = errors.New("dataset shape mismatch")
)
