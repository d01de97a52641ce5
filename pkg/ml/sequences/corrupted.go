// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sequences

import (
	"math/rand/v2"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CorruptedSequence wraps a sequence and prepends to each batch a corrupted copy of its node features,
// with the nodes randomly shuffled, as used by Deep Graph Infomax: the model learns to discriminate the
// real nodes from the corrupted ones.
//
// The targets are float32 shaped [..., 2], where each row is [1, 0]: the first column is the label of
// the real (uncorrupted) node, and the second of the corrupted one.
//
// Two layouts of source are supported:
//
//   - FullBatchSource (FullBatchSequence, RelationalFullBatchSequence): the node features Inputs[0]
//     shaped [1, numNodes, featureSize] are permuted along the node axis. The inputs become
//     [shuffled features, original inputs...], and the targets are shaped [1, numTargetIndices, 2].
//   - HopListSource (node sequences whose SampleFunc returns per-hop features): all the feature rows
//     of all the hops of the batch are shuffled together with one permutation, and split back into
//     the per-hop shapes. The inputs become [shuffled hops..., original hops...], and the targets are
//     shaped [batchSize, 2], where batchSize is the actual size of the batch.
type CorruptedSequence struct {
	source      Sequence
	isFullBatch bool
	targets     *tensors.Tensor
	rng         *rand.Rand
}

// NewCorruptedSequence creates a corrupted version of source.
//
// It returns an ErrTypeMismatch if source is neither a FullBatchSource nor a HopListSource.
// The shuffling uses its own random number generator, randomly seeded: use WithSeed for reproducible
// corruptions.
func NewCorruptedSequence(source Sequence) (*CorruptedSequence, error) {
	seq := &CorruptedSequence{
		source: source,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	if full, ok := source.(FullBatchSource); ok && full.HasFullBatchLayout() {
		seq.isFullBatch = true
		seq.targets = realLabels(1, full.NumTargetIndices())
	} else if hops, ok := source.(HopListSource); ok && hops.HasHopListLayout() {
		seq.targets = realLabels(hops.BatchSize())
	} else {
		return nil, errors.Wrapf(ErrTypeMismatch, "corrupted sequence requires a full-batch or a hop-list sequence, got %T",
			source)
	}
	klog.V(1).Infof("corrupted sequence over %T, targets shaped %s", source, seq.targets.Shape())
	return seq, nil
}

// realLabels returns a float32 tensor shaped [dims..., 2], with all rows set to [1, 0].
func realLabels(dims ...int) *tensors.Tensor {
	numRows := 1
	for _, dim := range dims {
		numRows *= dim
	}
	labels := make([]float32, 2*numRows)
	for row := range numRows {
		labels[2*row] = 1
	}
	return tensors.FromFlatDataAndDimensions(labels, append(slices.Clone(dims), 2)...)
}

// WithSeed sets the random number generator used for the corruption to one seeded with the given seed.
//
// It returns itself, to allow cascading configuration calls.
func (seq *CorruptedSequence) WithSeed(seed uint64) *CorruptedSequence {
	return seq.WithRand(rand.New(rand.NewPCG(seed, seed)))
}

// WithRand sets the random number generator used for the corruption.
//
// It returns itself, to allow cascading configuration calls.
func (seq *CorruptedSequence) WithRand(rng *rand.Rand) *CorruptedSequence {
	seq.rng = rng
	return seq
}

// Source returns the wrapped sequence.
func (seq *CorruptedSequence) Source() Sequence { return seq.source }

// Len implements Sequence, it is the same as the source.
func (seq *CorruptedSequence) Len() int { return seq.source.Len() }

// OnEpochEnd implements Sequence, it calls the source OnEpochEnd.
func (seq *CorruptedSequence) OnEpochEnd() { seq.source.OnEpochEnd() }

// Batch implements Sequence.
func (seq *CorruptedSequence) Batch(index int) (*Batch, error) {
	original, err := seq.source.Batch(index)
	if err != nil {
		return nil, err
	}
	if len(original.Inputs) == 0 {
		return nil, errors.Wrapf(ErrValidation, "corrupted sequence: batch %d of the source has no inputs", index)
	}
	batch := &Batch{}
	err = catchErrors(func() error {
		if seq.isFullBatch {
			features := original.Inputs[0]
			if features.Rank() < 2 {
				return errors.Wrapf(ErrValidation, "full-batch node features must be shaped [1, numNodes, ...], got %s",
					features.Shape())
			}
			perm := seq.rng.Perm(features.Shape().Dimensions[1])
			batch.Inputs = append([]*tensors.Tensor{permuteNodes(features, perm)}, original.Inputs...)
			batch.Targets = seq.targets
			return nil
		}
		shuffled := shuffleHops(original.Inputs, seq.rng)
		batch.Inputs = append(shuffled, original.Inputs...)
		batchSize := original.Inputs[0].Shape().Dimensions[0]
		if batchSize == seq.targets.Shape().Dimensions[0] {
			batch.Targets = seq.targets
		} else {
			batch.Targets = realLabels(batchSize)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "while corrupting batch %d", index)
	}
	return batch, nil
}
