// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package adjacency

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDense(t *testing.T) {
	d, err := NewDenseFromRows([][]int{
		{0, 1, 0},
		{1, 0, 2},
		{0, 0, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, d.NumNodes())
	assert.Equal(t, float32(2), d.At(1, 2))

	coo := d.ToCOO()
	assert.Equal(t, []int32{0, 1, 1}, coo.Rows)
	assert.Equal(t, []int32{1, 0, 2}, coo.Cols)
	assert.Equal(t, []float32{1, 1, 2}, coo.Values)
	assert.True(t, Equal(d, coo))

	padded := d.Resize(5)
	assert.Equal(t, 5, padded.NumNodes())
	assert.Equal(t, float32(2), padded.At(1, 2))
	for ii := range 5 {
		assert.Zero(t, padded.At(ii, 4))
		assert.Zero(t, padded.At(4, ii))
	}
	truncated := d.Resize(2)
	assert.Equal(t, []float32{0, 1, 1, 0}, truncated.Values)

	_, err = NewDenseFromRows([][]float32{{0, 1}, {1}})
	require.ErrorIs(t, err, ErrInvalidMatrix)
}

func TestCOO(t *testing.T) {
	coo, err := FromEdges(3, [][2]int32{{0, 1}, {2, 2}}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, coo.NumEntries())
	want, err := NewDenseFromRows([][]float32{
		{0, 1, 0},
		{1, 0, 0},
		{0, 0, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, want.Values, coo.ToDense().Values)

	// Duplicates are summed.
	coo, err = NewCOO(2, []int32{0, 0}, []int32{1, 1}, []float32{0.5, 0.25})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.75, 0, 0}, coo.ToDense().Values)

	_, err = NewCOO(2, []int32{0, 2}, []int32{1, 1}, nil)
	require.ErrorIs(t, err, ErrInvalidMatrix)
	_, err = NewCOO(2, []int32{0}, []int32{1, 1}, nil)
	require.ErrorIs(t, err, ErrInvalidMatrix)
	_, err = NewCOO(2, []int32{0}, []int32{1}, []float32{1, 2})
	require.ErrorIs(t, err, ErrInvalidMatrix)
}

func TestCSR(t *testing.T) {
	csr, err := NewCSR(3, []int32{0, 2, 2, 3}, []int32{1, 2, 0}, []float32{1, 3, 5})
	require.NoError(t, err)
	indices, values := csr.Row(0)
	assert.Equal(t, []int32{1, 2}, indices)
	assert.Equal(t, []float32{1, 3}, values)
	indices, _ = csr.Row(1)
	assert.Empty(t, indices)

	coo := csr.ToCOO()
	assert.Equal(t, []int32{0, 0, 2}, coo.Rows)
	assert.Equal(t, []int32{1, 2, 0}, coo.Cols)
	assert.True(t, Equal(csr, coo))
	assert.Equal(t, []float32{0, 1, 3, 0, 0, 0, 5, 0, 0}, csr.ToDense().Values)

	_, err = NewCSR(3, []int32{0, 2, 1, 3}, []int32{1, 2, 0}, nil)
	require.ErrorIs(t, err, ErrInvalidMatrix)
	_, err = NewCSR(3, []int32{0, 2, 3}, []int32{1, 2, 0}, nil)
	require.ErrorIs(t, err, ErrInvalidMatrix)
	_, err = NewCSR(2, []int32{0, 1, 2}, []int32{1, 2}, nil)
	require.ErrorIs(t, err, ErrInvalidMatrix)
}

func TestFromValue(t *testing.T) {
	want := []float32{0, 1, 2, 0}
	for _, value := range []any{
		[][]float32{{0, 1}, {2, 0}},
		[][]float64{{0, 1}, {2, 0}},
		[][]int{{0, 1}, {2, 0}},
		tensors.FromValue([][]float32{{0, 1}, {2, 0}}),
		tensors.FromValue([][]int32{{0, 1}, {2, 0}}),
		&Dense{N: 2, Values: []float32{0, 1, 2, 0}},
	} {
		m, err := FromValue(value)
		require.NoErrorf(t, err, "FromValue(%T)", value)
		assert.Equalf(t, want, m.ToDense().Values, "FromValue(%T)", value)
	}

	coo := &COO{N: 2}
	m, err := FromValue(coo)
	require.NoError(t, err)
	assert.Same(t, coo, m)

	for _, value := range []any{nil, "adjacency", []float32{1, 2}, map[int]int{}} {
		_, err := FromValue(value)
		require.ErrorIsf(t, err, ErrUnsupportedFormat, "FromValue(%T)", value)
	}
	_, err = FromValue(tensors.FromValue([][]float32{{0, 1, 2}, {2, 0, 1}}))
	require.ErrorIs(t, err, ErrInvalidMatrix)

	// Matrices built as literals are validated.
	for _, value := range []any{
		&COO{N: 4, Rows: []int32{0, 9}, Cols: []int32{1, 1}, Values: []float32{1, 1}},
		(*COO)(nil),
		(*CSR)(nil),
		(*Dense)(nil),
		&Dense{N: 3, Values: []float32{1}},
	} {
		_, err := FromValue(value)
		require.ErrorIsf(t, err, ErrInvalidMatrix, "FromValue(%#v)", value)
	}
}

func TestValidate(t *testing.T) {
	valid := []Matrix{
		NewDense(0),
		&Dense{N: 2, Values: []float32{0, 1, 1, 0}},
		&COO{N: 3, Rows: []int32{0, 2}, Cols: []int32{2, 2}, Values: []float32{1, 5}},
		&CSR{N: 2, IndPtr: []int32{0, 1, 1}, Indices: []int32{1}, Values: []float32{3}},
	}
	for _, m := range valid {
		require.NoErrorf(t, m.Validate(), "%#v", m)
	}

	invalid := []Matrix{
		(*Dense)(nil),
		&Dense{N: -1},
		&Dense{N: 2, Values: []float32{0, 1, 1}},
		(*COO)(nil),
		&COO{N: -1},
		&COO{N: 3, Rows: []int32{0, 1}, Cols: []int32{1}, Values: []float32{1, 1}},
		&COO{N: 3, Rows: []int32{0}, Cols: []int32{1}},
		&COO{N: 3, Rows: []int32{0}, Cols: []int32{-1}, Values: []float32{1}},
		(*CSR)(nil),
		&CSR{N: 2, IndPtr: []int32{0, 1}, Indices: []int32{1}, Values: []float32{1}},
		&CSR{N: 2, IndPtr: []int32{0, 1, 2}, Indices: []int32{1}, Values: []float32{1}},
		&CSR{N: 2, IndPtr: []int32{0, 2, 1}, Indices: []int32{1}, Values: []float32{1}},
		&CSR{N: 2, IndPtr: []int32{0, 0, 1}, Indices: []int32{2}, Values: []float32{1}},
		&CSR{N: 2, IndPtr: []int32{0, 0, 1}, Indices: []int32{1}},
	}
	for _, m := range invalid {
		require.ErrorIsf(t, m.Validate(), ErrInvalidMatrix, "%#v", m)
	}
}

func TestSparseDenseRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("dense to COO to dense preserves the matrix", prop.ForAll(
		func(n int, values []int) bool {
			d := NewDense(n)
			for ii := range d.Values {
				d.Values[ii] = float32(values[ii])
			}
			coo := d.ToCOO()
			for _, v := range coo.Values {
				if v == 0 {
					return false
				}
			}
			return Equal(d, coo) && Equal(coo.ToDense(), d)
		},
		gen.IntRange(0, 8),
		gen.SliceOfN(64, gen.IntRange(0, 3)),
	))
	properties.TestingRun(t)
}
