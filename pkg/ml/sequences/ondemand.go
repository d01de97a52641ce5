// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sequences

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// PairBatch is one batch of links planned by a PairSampler, with one label per link
// (usually 1 for positive pairs, and 0 for negative pairs).
type PairBatch[ID any] struct {
	Links  []Link[ID]
	Labels []int32
}

// PairSampler plans all the batches of (positive and negative) node pairs of one epoch, for instance
// by running random walks on the graph and sampling negative contexts.
type PairSampler[ID any] interface {
	Run(batchSize int) ([]PairBatch[ID], error)
}

// OnDemandLinkSequence yields the batches of links planned by a PairSampler, with the features generated
// by a SampleFunc and the pair labels as targets.
//
// All the batches of an epoch are planned at once, when the sequence is created and at the end of each
// epoch, and only the features are generated on demand.
type OnDemandLinkSequence[ID any] struct {
	sampleFn  SampleFunc[Link[ID]]
	sampler   PairSampler[ID]
	batchSize int
	shuffle   bool

	batches  []PairBatch[ID]
	numLinks int

	// planErr holds a failure to plan the batches at the end of an epoch, returned by the next Batch call.
	planErr error
}

// NewOnDemandLinkSequence creates a link sequence whose batches are planned by sampler.
//
// It plans the batches of the first epoch immediately, and returns the sampler error if it fails.
// By default, new batches are planned at the end of every epoch, see Shuffle.
func NewOnDemandLinkSequence[ID any](sampleFn SampleFunc[Link[ID]], batchSize int, sampler PairSampler[ID]) (
	*OnDemandLinkSequence[ID], error) {
	if sampleFn == nil {
		return nil, errors.Wrap(ErrValidation, "on-demand link sequence requires a sampling function")
	}
	if sampler == nil {
		return nil, errors.Wrap(ErrValidation, "on-demand link sequence requires a pair sampler")
	}
	if batchSize <= 0 {
		return nil, errors.Wrapf(ErrValidation, "on-demand link sequence batch size must be > 0, got %d", batchSize)
	}
	seq := &OnDemandLinkSequence[ID]{
		sampleFn:  sampleFn,
		sampler:   sampler,
		batchSize: batchSize,
		shuffle:   true,
	}
	if err := seq.plan(); err != nil {
		return nil, err
	}
	return seq, nil
}

// Shuffle configures whether a new set of batches is planned at the end of every epoch. Default is true.
// If false, the same batches are yielded every epoch.
//
// It returns itself, to allow cascading configuration calls.
func (seq *OnDemandLinkSequence[ID]) Shuffle(shuffle bool) *OnDemandLinkSequence[ID] {
	seq.shuffle = shuffle
	return seq
}

// plan asks the sampler for the batches of a new epoch.
func (seq *OnDemandLinkSequence[ID]) plan() error {
	var batches []PairBatch[ID]
	err := catchErrors(func() error {
		var err error
		batches, err = seq.sampler.Run(seq.batchSize)
		return err
	})
	if err != nil {
		return errors.WithMessage(err, "while planning batches of link pairs")
	}
	numLinks := 0
	for ii, batch := range batches {
		if len(batch.Links) != len(batch.Labels) {
			return errors.Wrapf(ErrValidation, "planned batch %d has %d links but %d labels",
				ii, len(batch.Links), len(batch.Labels))
		}
		numLinks += len(batch.Links)
	}
	seq.batches, seq.numLinks = batches, numLinks
	klog.V(2).Infof("on-demand link sequence: planned %d batches with %d links", len(batches), numLinks)
	return nil
}

// NumLinks returns the total number of links planned for the current epoch.
func (seq *OnDemandLinkSequence[ID]) NumLinks() int { return seq.numLinks }

// Len implements Sequence: the number of batches planned for the current epoch.
//
// After a planning failure it is 1, so that iterating over the epoch reaches Batch and gets the error.
func (seq *OnDemandLinkSequence[ID]) Len() int {
	if seq.planErr != nil {
		return 1
	}
	return len(seq.batches)
}

// Err returns the failure to plan the batches of the current epoch, or nil.
func (seq *OnDemandLinkSequence[ID]) Err() error { return seq.planErr }

// Batch implements Sequence.
func (seq *OnDemandLinkSequence[ID]) Batch(index int) (*Batch, error) {
	if seq.planErr != nil {
		return nil, seq.planErr
	}
	if index < 0 || index >= len(seq.batches) {
		return nil, errors.Wrapf(ErrOutOfRange, "link batch %d requested, but only %d batches were planned for this epoch",
			index, len(seq.batches))
	}
	planned := seq.batches[index]
	batch := &Batch{}
	err := catchErrors(func() error {
		var err error
		batch.Inputs, err = seq.sampleFn(planned.Links, index)
		return err
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "while generating link batch %d", index)
	}
	labels := make([]int32, len(planned.Labels))
	copy(labels, planned.Labels)
	batch.Targets = tensors.FromFlatDataAndDimensions(labels, len(labels))
	return batch, nil
}

// OnEpochEnd implements Sequence: if configured to shuffle, it plans a new set of batches.
//
// If planning fails, the sequence has no planned batches, Len returns 1 and every call to Batch returns
// the error, until the next OnEpochEnd plans successfully.
func (seq *OnDemandLinkSequence[ID]) OnEpochEnd() {
	if !seq.shuffle {
		return
	}
	seq.planErr = seq.plan()
	if seq.planErr != nil {
		seq.batches, seq.numLinks = nil, 0
	}
}
