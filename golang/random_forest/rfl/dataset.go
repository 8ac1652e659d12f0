package rfl

import (
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

//Dataset holds the training data: one row of Features per sample and one label per sample.
type Dataset struct {
	Features    *mat.Dense
	Labels      *mat.VecDense
	Description *string
}

//SetDescription sets a description for a Dataset object
func (ds *Dataset) SetDescription(description string) {
	ds.Description = &description
}

//NewDataset wraps raw row-major features and labels.
func NewDataset(rows, cols int, features []float64, labels []float64) (Dataset, error) {
	if rows <= 0 || cols <= 0 {
		return Dataset{}, fmt.Errorf("%w: %dx%d", ErrEmptyDataset, rows, cols)
	}
	if len(features) != rows*cols {
		return Dataset{}, fmt.Errorf("%w: %d feature values for %dx%d", ErrShapeMismatch, len(features), rows, cols)
	}
	if len(labels) != rows {
		return Dataset{}, fmt.Errorf("%w: %d labels for %d rows", ErrShapeMismatch, len(labels), rows)
	}
	return Dataset{Features: mat.NewDense(rows, cols, features), Labels: mat.NewVecDense(rows, labels)}, nil
}

//ReadDataset reads features and labels from two npy files and unites them into one Dataset object
func ReadDataset(log zerolog.Logger, fileNameFeatures, fileNameLabels string) (ds Dataset, err error) {
	log.Debug().Str("file", fileNameFeatures).Msg("load features")
	ds.Features, err = ReadNpy(fileNameFeatures)
	if err != nil {
		return Dataset{}, err
	}

	log.Debug().Str("file", fileNameLabels).Msg("load labels")
	labels, err := readNpyVector(fileNameLabels)
	if err != nil {
		return Dataset{}, err
	}
	ds.Labels = mat.NewVecDense(len(labels), labels)

	if _, _, err = ds.validatedDimensions(); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

//ReadNpy reads the content of a two-dimensional npy file
func ReadNpy(fileName string) (*mat.Dense, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read npy header of %s: %w", fileName, err)
	}

	denseMat := &mat.Dense{}
	if err := r.Read(denseMat); err != nil {
		return nil, fmt.Errorf("read npy %s: %w", fileName, err)
	}
	return denseMat, nil
}

// the flat reader accepts (n,), (n, 1) and (1, n) arrays
func readNpyVector(fileName string) ([]float64, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read npy header of %s: %w", fileName, err)
	}
	shape := r.Header.Descr.Shape
	if len(shape) > 2 || (len(shape) == 2 && shape[0] != 1 && shape[1] != 1) {
		return nil, fmt.Errorf("%w: %s has shape %v, want a vector", ErrShapeMismatch, fileName, shape)
	}

	var values []float64
	if err := r.Read(&values); err != nil {
		return nil, fmt.Errorf("read npy %s: %w", fileName, err)
	}
	return values, nil
}

//WriteNpy writes a vector or a matrix into a npy file
func WriteNpy(fileName string, val interface{}) error {
	dst, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err := npyio.Write(dst, val); err != nil {
		dst.Close()
		return fmt.Errorf("write npy %s: %w", fileName, err)
	}
	return dst.Close()
}

//Height returns the number of rows of a matrix
func Height(m mat.Matrix) int {
	h, _ := m.Dims()
	return h
}

//Classes returns the sorted distinct labels.
func (ds Dataset) Classes() []float64 {
	seen := make(map[float64]struct{})
	var classes []float64
	for i := 0; i < ds.Labels.Len(); i++ {
		l := ds.Labels.AtVec(i)
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			classes = append(classes, l)
		}
	}
	sort.Float64s(classes)
	return classes
}

//validatedDimensions checks the consistency of dimensions in arrays from the current dataset
//and returns the height (the number of samples) and the width (the number of features).
func (ds Dataset) validatedDimensions() (h, w int, err error) {
	if ds.Features == nil || ds.Labels == nil {
		return 0, 0, ErrEmptyDataset
	}
	h, w = ds.Features.Dims()
	if h == 0 || w == 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d features", ErrEmptyDataset, h, w)
	}
	if n := ds.Labels.Len(); n != h {
		return 0, 0, fmt.Errorf("%w: %d labels for %d samples", ErrShapeMismatch, n, h)
	}
	return h, w, nil
}
