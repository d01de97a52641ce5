// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sequences

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// RelationalFullBatchSequence packs a whole multi-relational graph in one batch, with one adjacency
// matrix per relation type, for models like RGCN.
//
// The inputs of its only batch are the node features [1, numNodes, featureSize] and the target
// indices [1, numTargetIndices] (see FullBatchSequence), followed by:
//
//   - Dense: one float32 [1, numNodes, numNodes] matrix per relation.
//   - Sparse: the int64 [1, numEntries_r, 2] coordinates of every relation, followed by the
//     float32 [1, numEntries_r] values of every relation.
type RelationalFullBatchSequence struct {
	*fullBatch
	sparse       bool
	numRelations int
}

var _ FullBatchSource = (*RelationalFullBatchSequence)(nil)

// NewRelationalFullBatchSequence creates a sequence with the whole graph in one batch.
//
// Args:
//   - features: node features shaped [numNodes, featureSize].
//   - adjs: one adjacency matrix per relation type, any value accepted by adjacency.FromValue.
//   - sparse: whether to feed the adjacency matrices in coordinate format.
//   - targets: optional (can be nil) targets shaped [len(indices), ...].
//   - indices: the nodes that the targets refer to. If nil, all nodes in order.
func NewRelationalFullBatchSequence(features *tensors.Tensor, adjs []any, sparse bool, targets *tensors.Tensor,
	indices []int32) (*RelationalFullBatchSequence, error) {
	const kind = "relational full-batch"
	if len(adjs) == 0 {
		return nil, errors.Wrapf(ErrValidation, "%s sequence requires at least one adjacency matrix", kind)
	}
	base, err := newFullBatch(kind, features, targets, indices)
	if err != nil {
		return nil, err
	}
	var indicesInputs, valuesInputs, denseInputs []*tensors.Tensor
	for ii, adj := range adjs {
		m, err := toAdjacency(fmt.Sprintf("%s relation #%d", kind, ii), adj, base.numNodes)
		if err != nil {
			return nil, err
		}
		packed := packAdjacency(m, sparse)
		if sparse {
			indicesInputs = append(indicesInputs, packed[0])
			valuesInputs = append(valuesInputs, packed[1])
		} else {
			denseInputs = append(denseInputs, packed[0])
		}
	}
	if sparse {
		base.inputs = append(base.inputs, indicesInputs...)
		base.inputs = append(base.inputs, valuesInputs...)
	} else {
		base.inputs = append(base.inputs, denseInputs...)
	}
	klog.V(1).Infof("%s sequence: %d nodes, %d relations, %d target indices, sparse=%v",
		kind, base.numNodes, len(adjs), base.numTargetIndices, sparse)
	return &RelationalFullBatchSequence{fullBatch: base, sparse: sparse, numRelations: len(adjs)}, nil
}

// IsSparse returns whether the adjacency matrices are fed in coordinate format.
func (seq *RelationalFullBatchSequence) IsSparse() bool { return seq.sparse }

// NumRelations is the number of relation types, one adjacency matrix each.
func (seq *RelationalFullBatchSequence) NumRelations() int { return seq.numRelations }
