// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package adjacency

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// FromValue converts the given value to a Matrix. Recognized values are:
//
//   - Any Matrix implementation (*Dense, *COO, *CSR), validated and returned as is.
//   - A square slice of rows: [][]float32, [][]float64, [][]int32, [][]int64 or [][]int.
//   - A rank-2 square *tensors.Tensor of a float or integer dtype, converted to Dense.
//
// Anything else returns an ErrUnsupportedFormat.
func FromValue(value any) (Matrix, error) {
	switch v := value.(type) {
	case nil:
		return nil, errors.Wrap(ErrUnsupportedFormat, "nil adjacency matrix")
	case Matrix:
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return v, nil
	case [][]float32:
		return NewDenseFromRows(v)
	case [][]float64:
		return NewDenseFromRows(v)
	case [][]int32:
		return NewDenseFromRows(v)
	case [][]int64:
		return NewDenseFromRows(v)
	case [][]int:
		return NewDenseFromRows(v)
	case *tensors.Tensor:
		return fromTensor(v)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "value of type %T", value)
	}
}

func fromTensor(t *tensors.Tensor) (*Dense, error) {
	dims := t.Shape().Dimensions
	if len(dims) != 2 || dims[0] != dims[1] {
		return nil, errors.Wrapf(ErrInvalidMatrix, "adjacency tensor must be square and rank-2, got shape %s", t.Shape())
	}
	d := NewDense(dims[0])
	var err error
	t.MustConstFlatData(func(flat any) {
		switch data := flat.(type) {
		case []float32:
			copy(d.Values, data)
		case []float64:
			convertInto(d.Values, data)
		case []int32:
			convertInto(d.Values, data)
		case []int64:
			convertInto(d.Values, data)
		case []int:
			convertInto(d.Values, data)
		default:
			err = errors.Wrapf(ErrUnsupportedFormat, "adjacency tensor of dtype %s", t.DType())
		}
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func convertInto[T float64 | int32 | int64 | int](to []float32, from []T) {
	for ii, v := range from {
		to[ii] = float32(v)
	}
}
