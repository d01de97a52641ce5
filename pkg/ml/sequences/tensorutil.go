// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sequences

import (
	"math/rand/v2"
	"reflect"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/graphseq/pkg/core/adjacency"
	"github.com/pkg/errors"
)

// Helpers that move data between tensors without knowing their dtype: they operate on the flat
// data through reflection. Shape problems caused by user data panic with a wrapped ErrValidation,
// and are converted back to errors by catchErrors at the public API.

// catchErrors runs fn and converts any panicked error to a returned error.
func catchErrors(fn func() error) (err error) {
	exception := exceptions.TryCatch[error](func() { err = fn() })
	if exception != nil {
		err = exception
	}
	return
}

// newTensorLike creates a zero-filled tensor with the dtype of t and the given dimensions.
func newTensorLike(t *tensors.Tensor, dimensions ...int) *tensors.Tensor {
	shape := t.Shape().Clone()
	shape.Dimensions = slices.Clone(dimensions)
	return tensors.FromShape(shape)
}

// accessFlat calls fn with the flat data of src (read-only) and dst (writable).
func accessFlat(src, dst *tensors.Tensor, fn func(src, dst reflect.Value)) {
	src.MustConstFlatData(func(srcFlat any) {
		dst.MustMutableFlatData(func(dstFlat any) {
			fn(reflect.ValueOf(srcFlat), reflect.ValueOf(dstFlat))
		})
	})
}

// rowSize is the number of elements in each slice of the leading axis.
func rowSize(dims []int) int {
	size := 1
	for _, dim := range dims[1:] {
		size *= dim
	}
	return size
}

// expandBatchAxis returns a copy of t with a new leading axis of dimension 1. A nil t returns nil.
func expandBatchAxis(t *tensors.Tensor) *tensors.Tensor {
	if t == nil {
		return nil
	}
	dims := append([]int{1}, t.Shape().Dimensions...)
	expanded := newTensorLike(t, dims...)
	accessFlat(t, expanded, func(src, dst reflect.Value) { reflect.Copy(dst, src) })
	return expanded
}

// gatherRows returns a new tensor with the slices of the leading axis of t at the given positions.
func gatherRows(t *tensors.Tensor, rows []int) *tensors.Tensor {
	dims := slices.Clone(t.Shape().Dimensions)
	size := rowSize(dims)
	dims[0] = len(rows)
	gathered := newTensorLike(t, dims...)
	accessFlat(t, gathered, func(src, dst reflect.Value) {
		for ii, row := range rows {
			reflect.Copy(dst.Slice(ii*size, (ii+1)*size), src.Slice(row*size, (row+1)*size))
		}
	})
	return gathered
}

// stackPaddedRows stacks rank-2 tensors [n_i, featureSize] into one tensor [len(ts), maxRows, featureSize],
// zero-padding the rows of each tensor up to maxRows.
func stackPaddedRows(ts []*tensors.Tensor, maxRows int) *tensors.Tensor {
	if len(ts) == 0 {
		exceptions.Panicf("stackPaddedRows requires at least one tensor")
	}
	first := ts[0]
	for ii, t := range ts {
		dims := t.Shape().Dimensions
		if len(dims) != 2 {
			panic(errors.Wrapf(ErrValidation, "node features #%d must be rank-2 [numNodes, featureSize], got shape %s",
				ii, t.Shape()))
		}
		if t.DType() != first.DType() || dims[1] != first.Shape().Dimensions[1] {
			panic(errors.Wrapf(ErrValidation, "node features #%d shaped %s is incompatible with node features #0 shaped %s",
				ii, t.Shape(), first.Shape()))
		}
		if dims[0] > maxRows {
			exceptions.Panicf("node features #%d has %d rows, more than maxRows=%d", ii, dims[0], maxRows)
		}
	}
	featureSize := first.Shape().Dimensions[1]
	stacked := newTensorLike(first, len(ts), maxRows, featureSize)
	for ii, t := range ts {
		accessFlat(t, stacked, func(src, dst reflect.Value) {
			base := ii * maxRows * featureSize
			reflect.Copy(dst.Slice(base, base+src.Len()), src)
		})
	}
	return stacked
}

// permuteNodes returns a copy of t, shaped [batch, numNodes, ...], with the node axis (axis 1) permuted:
// node j of the result is node perm[j] of t, for every example of the batch.
func permuteNodes(t *tensors.Tensor, perm []int) *tensors.Tensor {
	dims := t.Shape().Dimensions
	if len(dims) < 2 || dims[1] != len(perm) {
		exceptions.Panicf("permuteNodes: permutation of %d nodes can't be applied to shape %s", len(perm), t.Shape())
	}
	numNodes := dims[1]
	size := rowSize(dims[1:])
	permuted := newTensorLike(t, dims...)
	accessFlat(t, permuted, func(src, dst reflect.Value) {
		for b := range dims[0] {
			base := b * numNodes * size
			for to, from := range perm {
				reflect.Copy(dst.Slice(base+to*size, base+(to+1)*size),
					src.Slice(base+from*size, base+(from+1)*size))
			}
		}
	})
	return permuted
}

// shuffleHops concatenates the per-hop features [batch, hopNodes_h, featureSize] along the node axis,
// permutes all the batch*sum(hopNodes) feature rows with one random permutation, and splits the result
// back to the original per-hop shapes.
func shuffleHops(hops []*tensors.Tensor, rng *rand.Rand) []*tensors.Tensor {
	if len(hops) == 0 {
		panic(errors.Wrap(ErrValidation, "no hop features to shuffle"))
	}
	first := hops[0]
	firstDims := first.Shape().Dimensions
	if len(firstDims) != 3 {
		panic(errors.Wrapf(ErrValidation, "hop features must be rank-3 [batchSize, hopNodes, featureSize], got shape %s",
			first.Shape()))
	}
	batchSize, featureSize := firstDims[0], firstDims[2]

	// offsets[h] is the position of hop h in the concatenated node axis, offsets[len(hops)] is its total size.
	offsets := make([]int, len(hops)+1)
	for h, hop := range hops {
		dims := hop.Shape().Dimensions
		if len(dims) != 3 || dims[0] != batchSize || dims[2] != featureSize || hop.DType() != first.DType() {
			panic(errors.Wrapf(ErrValidation, "hop features #%d shaped %s is incompatible with hop features #0 shaped %s",
				h, hop.Shape(), first.Shape()))
		}
		offsets[h+1] = offsets[h] + dims[1]
	}
	totalNodes := offsets[len(hops)]
	perm := rng.Perm(batchSize * totalNodes)

	// locate returns the hop and the row within the hop flat data of a row of the concatenated tensor.
	locate := func(concatRow int) (hop, row int) {
		b, pos := concatRow/totalNodes, concatRow%totalNodes
		hop = hopOfPosition(offsets, pos)
		hopNodes := offsets[hop+1] - offsets[hop]
		return hop, b*hopNodes + pos - offsets[hop]
	}

	shuffled := make([]*tensors.Tensor, len(hops))
	for h, hop := range hops {
		shuffled[h] = newTensorLike(hop, hop.Shape().Dimensions...)
	}
	for h := range hops {
		hopNodes := offsets[h+1] - offsets[h]
		for srcHop := range hops {
			accessFlat(hops[srcHop], shuffled[h], func(src, dst reflect.Value) {
				for b := range batchSize {
					for j := range hopNodes {
						fromHop, fromRow := locate(perm[b*totalNodes+offsets[h]+j])
						if fromHop != srcHop {
							continue
						}
						toRow := b*hopNodes + j
						reflect.Copy(dst.Slice(toRow*featureSize, (toRow+1)*featureSize),
							src.Slice(fromRow*featureSize, (fromRow+1)*featureSize))
					}
				}
			})
		}
	}
	return shuffled
}

// hopOfPosition returns the index h such that offsets[h] <= pos < offsets[h+1], skipping empty hops.
func hopOfPosition(offsets []int, pos int) int {
	h, _ := slices.BinarySearch(offsets, pos+1)
	return h - 1
}

// denseAdjacencyTensor returns the adjacency matrix as a float32 tensor shaped [1, numNodes, numNodes].
func denseAdjacencyTensor(m adjacency.Matrix) *tensors.Tensor {
	d := m.ToDense()
	return tensors.FromFlatDataAndDimensions(slices.Clone(d.Values), 1, d.N, d.N)
}

// sparseAdjacencyTensors returns the coordinates of the adjacency matrix as an int64 tensor shaped
// [1, numEntries, 2] with (row, col) pairs, and its values as a float32 tensor shaped [1, numEntries].
func sparseAdjacencyTensors(m adjacency.Matrix) (indices, values *tensors.Tensor) {
	coo := m.ToCOO()
	numEntries := coo.NumEntries()
	flatIndices := make([]int64, 2*numEntries)
	for ii := range numEntries {
		flatIndices[2*ii] = int64(coo.Rows[ii])
		flatIndices[2*ii+1] = int64(coo.Cols[ii])
	}
	indices = tensors.FromFlatDataAndDimensions(flatIndices, 1, numEntries, 2)
	values = tensors.FromFlatDataAndDimensions(slices.Clone(coo.Values), 1, numEntries)
	return
}
