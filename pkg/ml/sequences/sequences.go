// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sequences generates fixed-shape batches of graph data to train GNN models: batches of
// nodes or links whose features are produced by a sampling function, whole graphs packed in a single
// batch (dense or sparse adjacency), batches of small padded graphs for graph classification, and
// corrupted copies of those for self-supervised objectives (e.g.: Deep Graph Infomax).
//
// Every generator implements Sequence: the number of batches per epoch, indexed batch retrieval and
// an end-of-epoch hook (where shuffling happens). Use NewDataset to feed any Sequence to a GoMLX
// training loop as a train.Dataset.
//
// A Sequence is meant to be driven by one caller at a time, and is not safe for concurrent use.
package sequences

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

var (
	// ErrValidation is returned (wrapped) for malformed arguments: mismatched number of ids,
	// targets or indices, invalid batch sizes, inconsistent shapes, etc.
	ErrValidation = errors.New("invalid sequence arguments")

	// ErrOutOfRange is returned (wrapped) when requesting a batch index >= Sequence.Len().
	ErrOutOfRange = errors.New("batch index out of range")

	// ErrTypeMismatch is returned (wrapped) for values of an unsupported type: unrecognized
	// adjacency matrix formats, or sources that can't be corrupted.
	ErrTypeMismatch = errors.New("unsupported type")
)

// Sequence is a finite, indexable source of batches, with a hook called at the end of each epoch.
type Sequence interface {
	// Len returns the number of batches per epoch.
	Len() int

	// Batch returns the batch at the given index, from 0 to Len()-1.
	// Indices out of range return an ErrOutOfRange.
	Batch(index int) (*Batch, error)

	// OnEpochEnd is called by the training loop at the end of each epoch. Usually it reshuffles the data.
	OnEpochEnd()
}

// Batch is one unit of data for a training step.
type Batch struct {
	// Inputs to the model.
	Inputs []*tensors.Tensor

	// Targets (labels) for the batch, or nil if the sequence has no targets.
	Targets *tensors.Tensor
}

// SampleFunc returns the input features for the given ids (the "head" nodes or links of a batch),
// typically by sampling their neighbourhoods in the graph.
//
// For node sequences to be corrupted by NewCorruptedSequence, the features must be a list of per-hop
// tensors shaped [len(ids), hopNodes, featureSize].
type SampleFunc[ID any] func(ids []ID, batchIndex int) (features []*tensors.Tensor, err error)

// Link identifies the edge from Source to Target.
type Link[ID any] struct {
	Source, Target ID
}

// FullBatchSource is a Sequence that yields the whole graph as its one batch, with the node features
// shaped [1, numNodes, featureSize] as its first input.
type FullBatchSource interface {
	Sequence

	// NumTargetIndices is the number of nodes selected by the target indices input.
	NumTargetIndices() int

	// HasFullBatchLayout reports whether the batches follow the full-batch layout.
	HasFullBatchLayout() bool
}

// HopListSource is a Sequence whose inputs are lists of per-hop features shaped
// [batchSize, hopNodes, featureSize], like those returned by the SampleFunc of NewNodeSequence.
type HopListSource interface {
	Sequence

	// BatchSize is the maximum number of head nodes per batch. The last batch may be smaller.
	BatchSize() int

	// HasHopListLayout reports whether the batches follow the hop-list layout.
	HasHopListLayout() bool
}

// ceilDiv returns ceil(n/d) for positive d.
func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
