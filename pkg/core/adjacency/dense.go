// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package adjacency

import (
	"github.com/pkg/errors"
)

// Dense is a row-major NumNodes x NumNodes adjacency matrix.
type Dense struct {
	// N is the number of nodes.
	N int

	// Values holds N*N values, row-major: the edge from node i to node j is at Values[i*N+j].
	Values []float32
}

// NewDense returns a zero-filled n x n matrix.
func NewDense(n int) *Dense {
	return &Dense{N: n, Values: make([]float32, n*n)}
}

// NewDenseFromRows creates a Dense matrix from a square slice of rows.
func NewDenseFromRows[T float32 | float64 | int | int32 | int64](rows [][]T) (*Dense, error) {
	n := len(rows)
	d := NewDense(n)
	for ii, row := range rows {
		if len(row) != n {
			return nil, errors.Wrapf(ErrInvalidMatrix, "row %d has %d columns, expected %d for a square matrix", ii, len(row), n)
		}
		for jj, v := range row {
			d.Values[ii*n+jj] = float32(v)
		}
	}
	return d, nil
}

// NumNodes implements Matrix.
func (d *Dense) NumNodes() int { return d.N }

// Validate implements Matrix.
func (d *Dense) Validate() error {
	if d == nil {
		return errors.Wrap(ErrInvalidMatrix, "nil dense matrix")
	}
	if d.N < 0 {
		return errors.Wrapf(ErrInvalidMatrix, "negative number of nodes %d", d.N)
	}
	if len(d.Values) != d.N*d.N {
		return errors.Wrapf(ErrInvalidMatrix, "dense matrix of %d nodes requires %d values, got %d",
			d.N, d.N*d.N, len(d.Values))
	}
	return nil
}

// At returns the value of the edge from node i to node j.
func (d *Dense) At(i, j int) float32 { return d.Values[i*d.N+j] }

// Set the value of the edge from node i to node j.
func (d *Dense) Set(i, j int, value float32) { d.Values[i*d.N+j] = value }

// ToDense implements Matrix. It returns d itself.
func (d *Dense) ToDense() *Dense { return d }

// ToCOO implements Matrix: it returns the non-zero entries in row-major order.
func (d *Dense) ToCOO() *COO {
	coo := &COO{N: d.N}
	for ii := range d.N {
		row := d.Values[ii*d.N : (ii+1)*d.N]
		for jj, v := range row {
			if v == 0 {
				continue
			}
			coo.Rows = append(coo.Rows, int32(ii))
			coo.Cols = append(coo.Cols, int32(jj))
			coo.Values = append(coo.Values, v)
		}
	}
	return coo
}

// Resize returns a new n x n matrix with the top-left corner copied from d.
// If n is larger than d.N the extra rows and columns are zero, otherwise d is truncated.
func (d *Dense) Resize(n int) *Dense {
	resized := NewDense(n)
	m := min(n, d.N)
	for ii := range m {
		copy(resized.Values[ii*n:ii*n+m], d.Values[ii*d.N:ii*d.N+m])
	}
	return resized
}

// Clone returns a copy of d that doesn't share the values storage.
func (d *Dense) Clone() *Dense {
	return &Dense{N: d.N, Values: append([]float32(nil), d.Values...)}
}
