// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package adjacency

import (
	"github.com/pkg/errors"
)

// COO is a sparse adjacency matrix in coordinate layout: entry k is the edge from Rows[k] to Cols[k]
// with value Values[k].
//
// Duplicate coordinates are allowed, and are summed when densified.
type COO struct {
	N          int
	Rows, Cols []int32
	Values     []float32
}

// NewCOO creates a COO matrix, checking that the coordinates and values are consistent.
// If values is nil, all edges get the value 1.
func NewCOO(n int, rows, cols []int32, values []float32) (*COO, error) {
	if values == nil {
		values = ones(len(rows))
	}
	c := &COO{N: n, Rows: rows, Cols: cols, Values: values}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ones returns a slice of n values set to 1.
func ones(n int) []float32 {
	values := make([]float32, n)
	for ii := range values {
		values[ii] = 1
	}
	return values
}

// FromEdges creates a COO matrix with value 1 for each (source, target) edge.
// If undirected is true, the reverse edge is also added for every edge that is not a self-loop.
func FromEdges(n int, edges [][2]int32, undirected bool) (*COO, error) {
	numEntries := len(edges)
	if undirected {
		numEntries *= 2
	}
	rows := make([]int32, 0, numEntries)
	cols := make([]int32, 0, numEntries)
	for _, edge := range edges {
		rows = append(rows, edge[0])
		cols = append(cols, edge[1])
		if undirected && edge[0] != edge[1] {
			rows = append(rows, edge[1])
			cols = append(cols, edge[0])
		}
	}
	return NewCOO(n, rows, cols, nil)
}

// NumNodes implements Matrix.
func (c *COO) NumNodes() int { return c.N }

// Validate implements Matrix: the coordinates and values must have the same length, and all
// coordinates must be valid node indices.
func (c *COO) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidMatrix, "nil COO matrix")
	}
	if c.N < 0 {
		return errors.Wrapf(ErrInvalidMatrix, "negative number of nodes %d", c.N)
	}
	if len(c.Rows) != len(c.Cols) {
		return errors.Wrapf(ErrInvalidMatrix, "got %d rows and %d cols, they must have the same length",
			len(c.Rows), len(c.Cols))
	}
	if len(c.Values) != len(c.Rows) {
		return errors.Wrapf(ErrInvalidMatrix, "got %d values for %d coordinates", len(c.Values), len(c.Rows))
	}
	for ii := range c.Rows {
		if err := checkIndex("rows", ii, c.Rows[ii], c.N); err != nil {
			return err
		}
		if err := checkIndex("cols", ii, c.Cols[ii], c.N); err != nil {
			return err
		}
	}
	return nil
}

// NumEntries is the number of stored coordinates, including explicit zeros and duplicates.
func (c *COO) NumEntries() int { return len(c.Values) }

// ToDense implements Matrix. Duplicate coordinates are summed.
func (c *COO) ToDense() *Dense {
	d := NewDense(c.N)
	for ii, v := range c.Values {
		d.Values[int(c.Rows[ii])*c.N+int(c.Cols[ii])] += v
	}
	return d
}

// ToCOO implements Matrix. It returns c itself.
func (c *COO) ToCOO() *COO { return c }

// CSR is a sparse adjacency matrix with compressed rows: the edges of node i are
// Indices[IndPtr[i]:IndPtr[i+1]], with values Values[IndPtr[i]:IndPtr[i+1]].
//
// len(IndPtr) is always N+1.
type CSR struct {
	N       int
	IndPtr  []int32
	Indices []int32
	Values  []float32
}

// NewCSR creates a CSR matrix, checking that the compressed rows are consistent.
// If values is nil, all edges get the value 1.
func NewCSR(n int, indPtr, indices []int32, values []float32) (*CSR, error) {
	if values == nil {
		values = ones(len(indices))
	}
	c := &CSR{N: n, IndPtr: indPtr, Indices: indices, Values: values}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate implements Matrix: the row pointers must be non-decreasing and span all the indices,
// the indices must be valid node indices, and there must be one value per index.
func (c *CSR) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidMatrix, "nil CSR matrix")
	}
	n := c.N
	if n < 0 {
		return errors.Wrapf(ErrInvalidMatrix, "negative number of nodes %d", n)
	}
	if len(c.IndPtr) != n+1 {
		return errors.Wrapf(ErrInvalidMatrix, "CSR of %d nodes requires %d row pointers, got %d", n, n+1, len(c.IndPtr))
	}
	if c.IndPtr[0] != 0 || int(c.IndPtr[n]) != len(c.Indices) {
		return errors.Wrapf(ErrInvalidMatrix, "CSR row pointers must span [0, %d], got [%d, %d]",
			len(c.Indices), c.IndPtr[0], c.IndPtr[n])
	}
	for ii := range n {
		if c.IndPtr[ii+1] < c.IndPtr[ii] {
			return errors.Wrapf(ErrInvalidMatrix, "CSR row pointers must be non-decreasing, got %d after %d",
				c.IndPtr[ii+1], c.IndPtr[ii])
		}
	}
	for ii, idx := range c.Indices {
		if err := checkIndex("indices", ii, idx, n); err != nil {
			return err
		}
	}
	if len(c.Values) != len(c.Indices) {
		return errors.Wrapf(ErrInvalidMatrix, "got %d values for %d indices", len(c.Values), len(c.Indices))
	}
	return nil
}

// NumNodes implements Matrix.
func (c *CSR) NumNodes() int { return c.N }

// Row returns the target nodes and values of the edges from node i.
// The returned slices share storage with the matrix.
func (c *CSR) Row(i int) (indices []int32, values []float32) {
	start, end := c.IndPtr[i], c.IndPtr[i+1]
	return c.Indices[start:end], c.Values[start:end]
}

// ToDense implements Matrix. Duplicate entries are summed.
func (c *CSR) ToDense() *Dense {
	d := NewDense(c.N)
	for ii := range c.N {
		indices, values := c.Row(ii)
		for jj, col := range indices {
			d.Values[ii*c.N+int(col)] += values[jj]
		}
	}
	return d
}

// ToCOO implements Matrix: entries are kept in their row order.
func (c *CSR) ToCOO() *COO {
	coo := &COO{
		N:      c.N,
		Rows:   make([]int32, len(c.Indices)),
		Cols:   append([]int32(nil), c.Indices...),
		Values: append([]float32(nil), c.Values...),
	}
	for ii := range c.N {
		for pos := c.IndPtr[ii]; pos < c.IndPtr[ii+1]; pos++ {
			coo.Rows[pos] = int32(ii)
		}
	}
	return coo
}
