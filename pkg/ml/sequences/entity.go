// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sequences

import (
	"math/rand/v2"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EntitySequence yields batches of entities (nodes or links) of a graph, with the features generated
// by a SampleFunc and, optionally, the corresponding rows of a targets tensor.
//
// The order of the entities is reshuffled at every epoch (see OnEpochEnd), unless configured otherwise
// with Shuffle(false). The shuffling uses its own random number generator: use WithSeed for
// reproducible orderings.
//
// Create it with NewNodeSequence or NewLinkSequence.
type EntitySequence[ID any] struct {
	kind      string
	sampleFn  SampleFunc[ID]
	batchSize int
	ids       []ID
	targets   *tensors.Tensor

	shuffle bool
	rng     *rand.Rand

	// indices is the current permutation of the positions of ids.
	indices []int
}

var (
	_ HopListSource = (*EntitySequence[int32])(nil)
)

// NewNodeSequence creates a sequence over the given node ids, in batches of batchSize nodes.
//
// For each batch, sampleFn is called with the node ids of the batch, and it should return the
// features to feed the model. If targets is not nil, its leading axis must have one row per node id,
// and the rows of the nodes in the batch are returned as the batch targets.
//
// It is configured by default to shuffle the nodes at every epoch, with a random seed.
func NewNodeSequence[ID any](sampleFn SampleFunc[ID], batchSize int, ids []ID, targets *tensors.Tensor) (
	*EntitySequence[ID], error) {
	return newEntitySequence("node", sampleFn, batchSize, ids, targets)
}

// NewLinkSequence creates a sequence over the given links, in batches of batchSize links.
// See NewNodeSequence for details.
func NewLinkSequence[ID any](sampleFn SampleFunc[Link[ID]], batchSize int, links []Link[ID], targets *tensors.Tensor) (
	*EntitySequence[Link[ID]], error) {
	return newEntitySequence("link", sampleFn, batchSize, links, targets)
}

func newEntitySequence[ID any](kind string, sampleFn SampleFunc[ID], batchSize int, ids []ID, targets *tensors.Tensor) (
	*EntitySequence[ID], error) {
	if sampleFn == nil {
		return nil, errors.Wrapf(ErrValidation, "%s sequence requires a sampling function", kind)
	}
	if batchSize <= 0 {
		return nil, errors.Wrapf(ErrValidation, "%s sequence batch size must be > 0, got %d", kind, batchSize)
	}
	if ids == nil {
		return nil, errors.Wrapf(ErrValidation, "%s sequence requires a list of %s ids, got nil", kind, kind)
	}
	if targets != nil {
		if targets.Rank() == 0 {
			return nil, errors.Wrapf(ErrValidation, "%s targets must have a leading axis with one row per id, got a scalar",
				kind)
		}
		if numTargets := targets.Shape().Dimensions[0]; numTargets != len(ids) {
			return nil, errors.Wrapf(ErrValidation, "the number of targets (%d) must be the same as the number of %s ids (%d)",
				numTargets, kind, len(ids))
		}
	}
	seq := &EntitySequence[ID]{
		kind:      kind,
		sampleFn:  sampleFn,
		batchSize: batchSize,
		ids:       ids,
		targets:   targets,
		shuffle:   true,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	seq.OnEpochEnd()
	return seq, nil
}

// Shuffle configures whether the ids are shuffled at every epoch. Default is true.
// It restarts the current epoch ordering.
//
// It returns itself, to allow cascading configuration calls.
func (seq *EntitySequence[ID]) Shuffle(shuffle bool) *EntitySequence[ID] {
	seq.shuffle = shuffle
	seq.OnEpochEnd()
	return seq
}

// WithSeed sets the random number generator used for shuffling to one seeded with the given seed,
// making the orderings reproducible. It restarts the current epoch ordering.
//
// It returns itself, to allow cascading configuration calls.
func (seq *EntitySequence[ID]) WithSeed(seed uint64) *EntitySequence[ID] {
	return seq.WithRand(rand.New(rand.NewPCG(seed, seed)))
}

// WithRand sets the random number generator used for shuffling. It restarts the current epoch ordering.
//
// It returns itself, to allow cascading configuration calls.
func (seq *EntitySequence[ID]) WithRand(rng *rand.Rand) *EntitySequence[ID] {
	seq.rng = rng
	seq.OnEpochEnd()
	return seq
}

// BatchSize implements HopListSource.
func (seq *EntitySequence[ID]) BatchSize() int { return seq.batchSize }

// HasHopListLayout implements HopListSource. Entity sequences are assumed to have their features
// organized as one tensor per hop.
func (seq *EntitySequence[ID]) HasHopListLayout() bool { return true }

// NumIDs returns the number of ids (nodes or links) in the sequence.
func (seq *EntitySequence[ID]) NumIDs() int { return len(seq.ids) }

// Len implements Sequence: ceil(numIDs / batchSize).
func (seq *EntitySequence[ID]) Len() int {
	return ceilDiv(len(seq.ids), seq.batchSize)
}

// Batch implements Sequence.
//
// It calls the sampling function with the ids of the batch, in the order of the current epoch.
// Errors returned (or panicked) by the sampling function are returned.
func (seq *EntitySequence[ID]) Batch(index int) (*Batch, error) {
	start := index * seq.batchSize
	if index < 0 || start >= len(seq.ids) {
		return nil, errors.Wrapf(ErrOutOfRange, "%s batch %d requested, but there are only %d batches of %d %ss",
			seq.kind, index, seq.Len(), seq.batchSize, seq.kind)
	}
	end := min(start+seq.batchSize, len(seq.ids))
	batchIndices := seq.indices[start:end]

	headIDs := make([]ID, len(batchIndices))
	for ii, idx := range batchIndices {
		headIDs[ii] = seq.ids[idx]
	}
	batch := &Batch{}
	err := catchErrors(func() error {
		var err error
		batch.Inputs, err = seq.sampleFn(headIDs, index)
		if err != nil {
			return err
		}
		if seq.targets != nil {
			batch.Targets = gatherRows(seq.targets, batchIndices)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "while generating %s batch %d", seq.kind, index)
	}
	return batch, nil
}

// OnEpochEnd implements Sequence: it restarts the ordering of the ids, shuffling them if so configured.
func (seq *EntitySequence[ID]) OnEpochEnd() {
	if len(seq.indices) != len(seq.ids) {
		seq.indices = make([]int, len(seq.ids))
	}
	for ii := range seq.indices {
		seq.indices[ii] = ii
	}
	if seq.shuffle {
		seq.rng.Shuffle(len(seq.indices), func(i, j int) {
			seq.indices[i], seq.indices[j] = seq.indices[j], seq.indices[i]
		})
		klog.V(2).Infof("%s sequence: shuffled %d %s ids", seq.kind, len(seq.ids), seq.kind)
	}
}
