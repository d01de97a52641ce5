// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sequences

import (
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/gomlx/graphseq/pkg/core/adjacency"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// fullBatch holds the inputs common to all sequences that pack the whole graph in one batch:
// the node features and the target indices, both with a leading batch axis of dimension 1.
type fullBatch struct {
	numNodes, numTargetIndices int
	inputs                     []*tensors.Tensor
	targets                    *tensors.Tensor
}

// newFullBatch validates features [numNodes, featureSize], indices and targets [len(indices), ...].
// If indices is nil, all nodes are selected, in order.
func newFullBatch(kind string, features, targets *tensors.Tensor, indices []int32) (*fullBatch, error) {
	if features == nil || features.Rank() != 2 {
		var shape any = "nil"
		if features != nil {
			shape = features.Shape()
		}
		return nil, errors.Wrapf(ErrValidation, "%s node features must be rank-2 [numNodes, featureSize], got %v", kind, shape)
	}
	numNodes := features.Shape().Dimensions[0]
	if indices == nil {
		indices = xslices.Iota(int32(0), numNodes)
	}
	for ii, idx := range indices {
		if idx < 0 || int(idx) >= numNodes {
			return nil, errors.Wrapf(ErrValidation, "%s target index #%d is %d, out of range for %d nodes", kind, ii, idx, numNodes)
		}
	}
	if targets != nil && (targets.Rank() == 0 || targets.Shape().Dimensions[0] != len(indices)) {
		return nil, errors.Wrapf(ErrValidation, "%s targets shaped %s must have one row per target index (%d indices)",
			kind, targets.Shape(), len(indices))
	}
	targetIndices := make([]int32, len(indices))
	copy(targetIndices, indices)
	return &fullBatch{
		numNodes:         numNodes,
		numTargetIndices: len(indices),
		inputs: []*tensors.Tensor{
			expandBatchAxis(features),
			tensors.FromFlatDataAndDimensions(targetIndices, 1, len(targetIndices)),
		},
		targets: expandBatchAxis(targets),
	}, nil
}

// toAdjacency converts the value to an adjacency matrix for numNodes nodes.
func toAdjacency(kind string, value any, numNodes int) (adjacency.Matrix, error) {
	m, err := adjacency.FromValue(value)
	if err != nil {
		if errors.Is(err, adjacency.ErrUnsupportedFormat) {
			return nil, errors.Wrapf(ErrTypeMismatch, "%s adjacency matrix: %v", kind, err)
		}
		return nil, errors.Wrapf(ErrValidation, "%s adjacency matrix: %v", kind, err)
	}
	if m.NumNodes() != numNodes {
		return nil, errors.Wrapf(ErrValidation, "%s adjacency matrix is %dx%d, but there are %d nodes",
			kind, m.NumNodes(), m.NumNodes(), numNodes)
	}
	return m, nil
}

// packAdjacency returns the tensors for the adjacency matrix: one [1, numNodes, numNodes] dense tensor,
// or the coordinates [1, numEntries, 2] and values [1, numEntries] tensors if sparse.
func packAdjacency(m adjacency.Matrix, sparse bool) []*tensors.Tensor {
	if sparse {
		indices, values := sparseAdjacencyTensors(m)
		return []*tensors.Tensor{indices, values}
	}
	return []*tensors.Tensor{denseAdjacencyTensor(m)}
}

// FullBatchSequence packs a whole graph in one batch, for models trained with the full graph at once (GCN, GAT, ...).
//
// The inputs of its only batch are:
//
//   - Node features, shaped [1, numNodes, featureSize].
//   - Target indices, int32 shaped [1, numTargetIndices]: the nodes the targets refer to.
//   - Adjacency matrix: either dense, float32 shaped [1, numNodes, numNodes]; or sparse, as the
//     (row, col) coordinates int64 shaped [1, numEntries, 2] followed by the values float32 shaped [1, numEntries].
//
// The targets, if given, are shaped [1, numTargetIndices, ...].
type FullBatchSequence struct {
	*fullBatch
	sparse bool
}

var _ FullBatchSource = (*FullBatchSequence)(nil)

// NewFullBatchSequence creates a sequence with the whole graph in one batch, with a dense adjacency matrix.
//
// Args:
//   - features: node features shaped [numNodes, featureSize].
//   - adj: adjacency matrix, any value accepted by adjacency.FromValue. Sparse matrices are densified.
//   - targets: optional (can be nil) targets shaped [len(indices), ...].
//   - indices: the nodes that the targets refer to. If nil, all nodes in order.
func NewFullBatchSequence(features *tensors.Tensor, adj any, targets *tensors.Tensor, indices []int32) (
	*FullBatchSequence, error) {
	return newFullBatchSequence("full-batch", false, features, adj, targets, indices)
}

// NewSparseFullBatchSequence is like NewFullBatchSequence, but the adjacency matrix is fed in coordinate
// format (indices and values), which avoids the O(numNodes²) memory of a dense matrix for sparse graphs.
func NewSparseFullBatchSequence(features *tensors.Tensor, adj any, targets *tensors.Tensor, indices []int32) (
	*FullBatchSequence, error) {
	return newFullBatchSequence("sparse full-batch", true, features, adj, targets, indices)
}

func newFullBatchSequence(kind string, sparse bool, features *tensors.Tensor, adj any, targets *tensors.Tensor,
	indices []int32) (*FullBatchSequence, error) {
	base, err := newFullBatch(kind, features, targets, indices)
	if err != nil {
		return nil, err
	}
	m, err := toAdjacency(kind, adj, base.numNodes)
	if err != nil {
		return nil, err
	}
	adjInputs := packAdjacency(m, sparse)
	base.inputs = append(base.inputs, adjInputs...)
	if klog.V(1).Enabled() {
		var mem uintptr
		for _, t := range adjInputs {
			mem += t.Memory()
		}
		klog.Infof("%s sequence: %d nodes, %d target indices, adjacency uses %s",
			kind, base.numNodes, base.numTargetIndices, humanize.Bytes(uint64(mem)))
	}
	return &FullBatchSequence{fullBatch: base, sparse: sparse}, nil
}

// IsSparse returns whether the adjacency matrix is fed in coordinate format.
func (seq *FullBatchSequence) IsSparse() bool { return seq.sparse }

// NumNodes in the graph.
func (seq *fullBatch) NumNodes() int { return seq.numNodes }

// NumTargetIndices implements FullBatchSource.
func (seq *fullBatch) NumTargetIndices() int { return seq.numTargetIndices }

// HasFullBatchLayout implements FullBatchSource.
func (seq *fullBatch) HasFullBatchLayout() bool { return true }

// Len implements Sequence. It is always 1.
func (seq *fullBatch) Len() int { return 1 }

// Batch implements Sequence. There is only one batch, and it is returned for any index.
//
// The same tensors are returned at every call: they must not be modified or finalized.
func (seq *fullBatch) Batch(int) (*Batch, error) {
	return &Batch{Inputs: slices.Clone(seq.inputs), Targets: seq.targets}, nil
}

// OnEpochEnd implements Sequence. It is a no-op.
func (seq *fullBatch) OnEpochEnd() {}
