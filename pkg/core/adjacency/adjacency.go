// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package adjacency holds square adjacency matrices of graphs in the layouts used to feed
// GNN models: Dense (row-major), COO (coordinate list) and CSR (compressed rows).
//
// All layouts use float32 values, the default dtype for GoMLX models, and can be converted
// to each other with Matrix.ToDense and Matrix.ToCOO.
package adjacency

import (
	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedFormat is returned by FromValue for values that are not a recognized
	// dense or sparse matrix layout.
	ErrUnsupportedFormat = errors.New("adjacency: unsupported matrix format")

	// ErrInvalidMatrix is returned when the parts of a matrix are inconsistent: lengths of
	// rows/columns/values that don't match, indices out of range or non-square shapes.
	ErrInvalidMatrix = errors.New("adjacency: invalid matrix")
)

// Matrix is a square NumNodes x NumNodes adjacency matrix.
type Matrix interface {
	// NumNodes is the number of rows (and columns) of the matrix.
	NumNodes() int

	// ToDense returns the matrix in Dense layout. Implementations already in Dense layout return themselves.
	ToDense() *Dense

	// ToCOO returns the matrix in coordinate layout. Implementations already in COO layout return themselves.
	ToCOO() *COO

	// Validate returns an ErrInvalidMatrix if the matrix parts are inconsistent, or if the matrix is a nil pointer.
	// ToDense and ToCOO may panic on matrices that don't validate.
	Validate() error
}

var (
	_ Matrix = (*Dense)(nil)
	_ Matrix = (*COO)(nil)
	_ Matrix = (*CSR)(nil)
)

// Equal returns whether both matrices have the same size and the same values, regardless of layout.
//
// Sparse layouts are densified for the comparison, so duplicate entries are summed first.
func Equal(m0, m1 Matrix) bool {
	if m0 == nil || m1 == nil {
		return m0 == m1
	}
	if m0.NumNodes() != m1.NumNodes() {
		return false
	}
	d0, d1 := m0.ToDense(), m1.ToDense()
	for ii, v := range d0.Values {
		if d1.Values[ii] != v {
			return false
		}
	}
	return true
}

// checkIndex returns an ErrInvalidMatrix if idx is not a valid node index of an n x n matrix.
func checkIndex(what string, pos int, idx int32, n int) error {
	if idx < 0 || int(idx) >= n {
		return errors.Wrapf(ErrInvalidMatrix, "%s[%d]=%d out of range for a %dx%d matrix", what, pos, idx, n, n)
	}
	return nil
}
