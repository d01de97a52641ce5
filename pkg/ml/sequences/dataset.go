// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sequences

import (
	"io"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Dataset adapts a Sequence to a train.Dataset, so it can be used with train.Loop and the
// datasets package wrappers (datasets.Parallel, datasets.Take, etc.).
//
// Each epoch yields the batches 0 to Len()-1 in order, and then io.EOF. Reset moves to the next
// epoch, calling the sequence OnEpochEnd if the epoch was started: that is, if Yield was called since
// the last Reset, whether it returned a batch, an error or io.EOF.
//
// The yielded tensors are not owned by the caller: full-batch sequences yield the same tensors
// at every epoch.
type Dataset struct {
	name    string
	seq     Sequence
	next    int
	started bool
}

var (
	_ train.Dataset                = (*Dataset)(nil)
	_ train.DatasetCustomOwnership = (*Dataset)(nil)
)

// NewDataset creates a train.Dataset with the given name that yields the batches of seq.
func NewDataset(name string, seq Sequence) *Dataset {
	return &Dataset{name: name, seq: seq}
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// Sequence returns the underlying sequence.
func (ds *Dataset) Sequence() Sequence { return ds.seq }

// Reset implements train.Dataset.
func (ds *Dataset) Reset() {
	if ds.started {
		ds.seq.OnEpochEnd()
		klog.V(2).Infof("dataset %q: epoch ended after %d batches", ds.name, ds.next)
	}
	ds.next = 0
	ds.started = false
}

// Yield implements train.Dataset. The inputs are the batch inputs, and labels is the batch targets
// as a one-element slice, or nil if the sequence has no targets. spec is always nil.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	ds.started = true
	if ds.next >= ds.seq.Len() {
		return nil, nil, nil, io.EOF
	}
	batch, err := ds.seq.Batch(ds.next)
	if err != nil {
		return nil, nil, nil, errors.WithMessagef(err, "dataset %q", ds.name)
	}
	ds.next++
	inputs = batch.Inputs
	if batch.Targets != nil {
		labels = []*tensors.Tensor{batch.Targets}
	}
	return nil, inputs, labels, nil
}

// IsOwnershipTransferred implements train.DatasetCustomOwnership. It returns false: the sequence keeps
// ownership of the yielded tensors.
func (ds *Dataset) IsOwnershipTransferred() bool {
	return false
}
