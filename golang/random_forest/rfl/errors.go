package rfl

import "errors"

var (
	ErrEmptyDataset  = errors.New("empty dataset")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrParams        = errors.New("invalid forest parameters")
	ErrFigureType    = errors.New("unsupported figure type")
	ErrEmptyForest   = errors.New("forest has no trees")
)
