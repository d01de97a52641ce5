// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sequences

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/graphseq/pkg/core/adjacency"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triangleFeatures are the features of a 4-node graph: node i has features [i, 10*i].
func triangleFeatures() *tensors.Tensor {
	return tensors.FromValue([][]float32{{0, 0}, {1, 10}, {2, 20}, {3, 30}})
}

var triangleAdj = [][]float32{
	{0, 1, 1, 0},
	{1, 0, 1, 0},
	{1, 1, 0, 0},
	{0, 0, 0, 1},
}

// denseFromSparse rebuilds the dense [numNodes, numNodes] matrix from sparse inputs [1, E, 2] and [1, E].
func denseFromSparse(t *testing.T, indices, values *tensors.Tensor, numNodes int) []float32 {
	require.Equal(t, []int{1, values.Shape().Dimensions[1], 2}, indices.Shape().Dimensions)
	flatIndices := tensors.MustCopyFlatData[int64](indices)
	flatValues := tensors.MustCopyFlatData[float32](values)
	dense := make([]float32, numNodes*numNodes)
	for ii, v := range flatValues {
		dense[int(flatIndices[2*ii])*numNodes+int(flatIndices[2*ii+1])] += v
	}
	return dense
}

func TestFullBatchSequence(t *testing.T) {
	targets := tensors.FromValue([]int32{7, 8})
	seq, err := NewFullBatchSequence(triangleFeatures(), triangleAdj, targets, []int32{3, 1})
	require.NoError(t, err)
	assert.False(t, seq.IsSparse())
	assert.Equal(t, 4, seq.NumNodes())
	assert.Equal(t, 2, seq.NumTargetIndices())
	require.Equal(t, 1, seq.Len())

	batch, err := seq.Batch(0)
	require.NoError(t, err)
	require.Len(t, batch.Inputs, 3)
	assert.Equal(t, []int{1, 4, 2}, batch.Inputs[0].Shape().Dimensions)
	assert.Equal(t, []float32{0, 0, 1, 10, 2, 20, 3, 30}, tensors.MustCopyFlatData[float32](batch.Inputs[0]))
	assert.Equal(t, []int{1, 2}, batch.Inputs[1].Shape().Dimensions)
	assert.Equal(t, []int32{3, 1}, tensors.MustCopyFlatData[int32](batch.Inputs[1]))
	assert.Equal(t, []int{1, 4, 4}, batch.Inputs[2].Shape().Dimensions)
	want, err := adjacency.NewDenseFromRows(triangleAdj)
	require.NoError(t, err)
	assert.Equal(t, want.Values, tensors.MustCopyFlatData[float32](batch.Inputs[2]))
	assert.Equal(t, []int{1, 2}, batch.Targets.Shape().Dimensions)
	assert.Equal(t, []int32{7, 8}, tensors.MustCopyFlatData[int32](batch.Targets))

	// Any index returns the same batch, and the epoch end changes nothing.
	seq.OnEpochEnd()
	again, err := seq.Batch(5)
	require.NoError(t, err)
	assert.Equal(t, batch.Inputs, again.Inputs)

	// Default indices: all nodes. No targets.
	seq, err = NewFullBatchSequence(triangleFeatures(), triangleAdj, nil, nil)
	require.NoError(t, err)
	batch, err = seq.Batch(0)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2, 3}, tensors.MustCopyFlatData[int32](batch.Inputs[1]))
	assert.Nil(t, batch.Targets)
}

func TestFullBatchSequenceValidation(t *testing.T) {
	features := triangleFeatures()
	_, err := NewFullBatchSequence(tensors.FromValue([]float32{1, 2}), triangleAdj, nil, nil)
	require.ErrorIs(t, err, ErrValidation)
	_, err = NewFullBatchSequence(nil, triangleAdj, nil, nil)
	require.ErrorIs(t, err, ErrValidation)
	_, err = NewFullBatchSequence(features, [][]float32{{0, 1}, {1, 0}}, nil, nil)
	require.ErrorIs(t, err, ErrValidation)
	_, err = NewFullBatchSequence(features, "not a matrix", nil, nil)
	require.ErrorIs(t, err, ErrTypeMismatch)
	_, err = NewSparseFullBatchSequence(features, map[int]int{0: 1}, nil, nil)
	require.ErrorIs(t, err, ErrTypeMismatch)
	_, err = NewFullBatchSequence(features, triangleAdj, nil, []int32{0, 4})
	require.ErrorIs(t, err, ErrValidation)
	_, err = NewFullBatchSequence(features, triangleAdj, tensors.FromValue([]int32{1, 2, 3}), []int32{0, 1})
	require.ErrorIs(t, err, ErrValidation)
	_, err = NewRelationalFullBatchSequence(features, nil, false, nil, nil)
	require.ErrorIs(t, err, ErrValidation)

	// Sparse matrices built as literals are validated.
	badCOO := &adjacency.COO{N: 4, Rows: []int32{0, 9}, Cols: []int32{1, 1}, Values: []float32{1, 1}}
	_, err = NewFullBatchSequence(features, badCOO, nil, nil)
	require.ErrorIs(t, err, ErrValidation)
	_, err = NewSparseFullBatchSequence(features, badCOO, nil, nil)
	require.ErrorIs(t, err, ErrValidation)
	_, err = NewFullBatchSequence(features, (*adjacency.COO)(nil), nil, nil)
	require.ErrorIs(t, err, ErrValidation)
	_, err = NewRelationalFullBatchSequence(features, []any{triangleAdj, &adjacency.CSR{N: 4}}, true, nil, nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestSparseFullBatchSequence(t *testing.T) {
	coo, err := adjacency.FromEdges(4, [][2]int32{{0, 1}, {1, 2}, {0, 2}, {3, 3}}, true)
	require.NoError(t, err)
	seq, err := NewSparseFullBatchSequence(triangleFeatures(), coo, nil, []int32{2})
	require.NoError(t, err)
	assert.True(t, seq.IsSparse())
	batch, err := seq.Batch(0)
	require.NoError(t, err)
	require.Len(t, batch.Inputs, 4)
	want, err := adjacency.NewDenseFromRows(triangleAdj)
	require.NoError(t, err)
	assert.Equal(t, want.Values, denseFromSparse(t, batch.Inputs[2], batch.Inputs[3], 4))

	// Dense sequence from the same sparse matrix.
	denseSeq, err := NewFullBatchSequence(triangleFeatures(), coo, nil, []int32{2})
	require.NoError(t, err)
	denseBatch, err := denseSeq.Batch(0)
	require.NoError(t, err)
	assert.Equal(t, want.Values, tensors.MustCopyFlatData[float32](denseBatch.Inputs[2]))
}

func TestSparseReconstructsDense(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("sparse indices and values reconstruct the dense adjacency", prop.ForAll(
		func(numNodes int, values []int) bool {
			d := adjacency.NewDense(numNodes)
			for ii := range d.Values {
				d.Values[ii] = float32(values[ii])
			}
			d.Values[0]++ // At least one entry.
			features := tensors.FromFlatDataAndDimensions(make([]float32, numNodes), numNodes, 1)
			sparseSeq, err := NewSparseFullBatchSequence(features, d, nil, nil)
			if err != nil {
				return false
			}
			denseSeq, err := NewFullBatchSequence(features, d, nil, nil)
			if err != nil {
				return false
			}
			sparseBatch, _ := sparseSeq.Batch(0)
			denseBatch, _ := denseSeq.Batch(0)
			reconstructed := denseFromSparse(t, sparseBatch.Inputs[2], sparseBatch.Inputs[3], numNodes)
			return assert.ObjectsAreEqual(tensors.MustCopyFlatData[float32](denseBatch.Inputs[2]), reconstructed)
		},
		gen.IntRange(1, 8),
		gen.SliceOfN(64, gen.IntRange(0, 2)),
	))
	properties.TestingRun(t)
}

func TestRelationalFullBatchSequence(t *testing.T) {
	likes, err := adjacency.FromEdges(4, [][2]int32{{0, 1}}, false)
	require.NoError(t, err)
	follows := tensors.FromValue([][]float32{
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 2},
		{0, 0, 0, 0},
	})
	adjs := []any{likes, follows, triangleAdj}

	seq, err := NewRelationalFullBatchSequence(triangleFeatures(), adjs, false, nil, []int32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, seq.NumRelations())
	assert.False(t, seq.IsSparse())
	batch, err := seq.Batch(0)
	require.NoError(t, err)
	require.Len(t, batch.Inputs, 2+3)
	for _, adj := range batch.Inputs[2:] {
		assert.Equal(t, []int{1, 4, 4}, adj.Shape().Dimensions)
	}
	assert.Equal(t, float32(2), tensors.MustCopyFlatData[float32](batch.Inputs[3])[2*4+3])

	seq, err = NewRelationalFullBatchSequence(triangleFeatures(), adjs, true, nil, []int32{1, 2})
	require.NoError(t, err)
	assert.True(t, seq.IsSparse())
	batch, err = seq.Batch(0)
	require.NoError(t, err)
	require.Len(t, batch.Inputs, 2+2*3)
	for r, adj := range adjs {
		m, err := adjacency.FromValue(adj)
		require.NoError(t, err)
		assert.Equal(t, m.ToDense().Values, denseFromSparse(t, batch.Inputs[2+r], batch.Inputs[2+3+r], 4),
			"relation #%d", r)
	}

	_, err = NewRelationalFullBatchSequence(triangleFeatures(), []any{likes, [][]int{{1}}}, true, nil, nil)
	require.ErrorIs(t, err, ErrValidation)
}
