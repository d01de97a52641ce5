// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sequences

import (
	"math/rand/v2"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/graphseq/pkg/core/adjacency"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Graph is the view of a small graph used by GraphSequence.
type Graph interface {
	// NumNodes in the graph.
	NumNodes() int

	// NodeFeatures returns the features of all the nodes, shaped [NumNodes(), featureSize].
	NodeFeatures() (*tensors.Tensor, error)

	// AdjacencyMatrix returns the adjacency matrix, with NumNodes() nodes.
	AdjacencyMatrix() (adjacency.Matrix, error)
}

// NormalizeFunc transforms an adjacency matrix before it is fed to the model, for instance
// the symmetric normalization with self-loops used by GCN.
type NormalizeFunc func(adjacency.Matrix) (adjacency.Matrix, error)

// GraphSequence yields batches of whole (small) graphs, for graph classification or regression.
//
// Each batch holds the graphs zero-padded to the largest number of nodes in the batch (maxNodes):
//
//   - Inputs[0]: node features shaped [batchSize, maxNodes, featureSize].
//   - Inputs[1]: bool mask shaped [batchSize, maxNodes], true for the real nodes of each graph.
//   - Inputs[2]: float32 adjacency matrices shaped [batchSize, maxNodes, maxNodes].
//
// The targets, if given, are the rows of the graphs in the batch. The last batch may be smaller.
type GraphSequence struct {
	graphs    []Graph
	adjs      []*adjacency.Dense
	targets   *tensors.Tensor
	batchSize int

	shuffle bool
	rng     *rand.Rand

	// order is the current permutation of the graphs, shared by graphs, adjs and targets.
	order []int
}

// NewGraphSequence creates a sequence over the graphs, in batches of batchSize graphs.
//
// The adjacency matrix of each graph is read at construction, transformed by normalize (if not nil) and
// cached densified. The node features are read at each batch.
//
// If targets is not nil, its leading axis must have one row per graph.
// It is configured by default to shuffle the graphs at every epoch, with a random seed.
func NewGraphSequence(graphs []Graph, targets *tensors.Tensor, batchSize int, normalize NormalizeFunc) (
	*GraphSequence, error) {
	if batchSize <= 0 {
		return nil, errors.Wrapf(ErrValidation, "graph sequence batch size must be > 0, got %d", batchSize)
	}
	if targets != nil && (targets.Rank() == 0 || targets.Shape().Dimensions[0] != len(graphs)) {
		return nil, errors.Wrapf(ErrValidation, "graph targets shaped %s must have one row per graph (%d graphs)",
			targets.Shape(), len(graphs))
	}
	adjs := make([]*adjacency.Dense, len(graphs))
	totalNodes := 0
	for ii, graph := range graphs {
		if graph == nil {
			return nil, errors.Wrapf(ErrValidation, "graph #%d is nil", ii)
		}
		m, err := graph.AdjacencyMatrix()
		if err != nil {
			return nil, errors.WithMessagef(err, "while reading the adjacency matrix of graph #%d", ii)
		}
		if err = validateGraphAdjacency(ii, "adjacency matrix", m); err != nil {
			return nil, err
		}
		if normalize != nil {
			m, err = normalize(m)
			if err != nil {
				return nil, errors.WithMessagef(err, "while normalizing the adjacency matrix of graph #%d", ii)
			}
			if err = validateGraphAdjacency(ii, "normalized adjacency matrix", m); err != nil {
				return nil, err
			}
		}
		if m.NumNodes() != graph.NumNodes() {
			return nil, errors.Wrapf(ErrValidation, "graph #%d has %d nodes, but its adjacency matrix is %dx%d",
				ii, graph.NumNodes(), m.NumNodes(), m.NumNodes())
		}
		adjs[ii] = m.ToDense()
		totalNodes += graph.NumNodes()
	}
	seq := &GraphSequence{
		graphs:    graphs,
		adjs:      adjs,
		targets:   targets,
		batchSize: batchSize,
		shuffle:   true,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	seq.OnEpochEnd()
	klog.V(1).Infof("graph sequence: %d graphs with %d nodes in total, batch size %d", len(graphs), totalNodes, batchSize)
	return seq, nil
}

// validateGraphAdjacency returns an ErrValidation if m is nil or malformed.
func validateGraphAdjacency(graphIdx int, what string, m adjacency.Matrix) error {
	if m == nil {
		return errors.Wrapf(ErrValidation, "graph #%d has no %s", graphIdx, what)
	}
	if err := m.Validate(); err != nil {
		return errors.Wrapf(ErrValidation, "graph #%d %s: %v", graphIdx, what, err)
	}
	return nil
}

// Shuffle configures whether the graphs are shuffled at every epoch. Default is true.
// It restarts the current epoch ordering.
//
// It returns itself, to allow cascading configuration calls.
func (seq *GraphSequence) Shuffle(shuffle bool) *GraphSequence {
	seq.shuffle = shuffle
	seq.OnEpochEnd()
	return seq
}

// WithSeed sets the random number generator used for shuffling to one seeded with the given seed.
// It restarts the current epoch ordering.
//
// It returns itself, to allow cascading configuration calls.
func (seq *GraphSequence) WithSeed(seed uint64) *GraphSequence {
	return seq.WithRand(rand.New(rand.NewPCG(seed, seed)))
}

// WithRand sets the random number generator used for shuffling. It restarts the current epoch ordering.
//
// It returns itself, to allow cascading configuration calls.
func (seq *GraphSequence) WithRand(rng *rand.Rand) *GraphSequence {
	seq.rng = rng
	seq.OnEpochEnd()
	return seq
}

// NumGraphs in the sequence.
func (seq *GraphSequence) NumGraphs() int { return len(seq.graphs) }

// BatchSize is the maximum number of graphs per batch.
func (seq *GraphSequence) BatchSize() int { return seq.batchSize }

// Len implements Sequence: ceil(numGraphs / batchSize).
func (seq *GraphSequence) Len() int { return ceilDiv(len(seq.graphs), seq.batchSize) }

// Batch implements Sequence.
func (seq *GraphSequence) Batch(index int) (*Batch, error) {
	start := index * seq.batchSize
	if index < 0 || start >= len(seq.graphs) {
		return nil, errors.Wrapf(ErrOutOfRange, "graph batch %d requested, but there are only %d batches of %d graphs",
			index, seq.Len(), seq.batchSize)
	}
	end := min(start+seq.batchSize, len(seq.graphs))
	batchOrder := seq.order[start:end]
	batchSize := len(batchOrder)

	maxNodes := 0
	for _, idx := range batchOrder {
		maxNodes = max(maxNodes, seq.graphs[idx].NumNodes())
	}

	features := make([]*tensors.Tensor, batchSize)
	for ii, idx := range batchOrder {
		f, err := seq.graphs[idx].NodeFeatures()
		if err != nil {
			return nil, errors.WithMessagef(err, "while reading the node features of graph #%d", idx)
		}
		if f == nil || f.Rank() != 2 || f.Shape().Dimensions[0] != seq.graphs[idx].NumNodes() {
			var shape any = "nil"
			if f != nil {
				shape = f.Shape()
			}
			return nil, errors.Wrapf(ErrValidation, "node features of graph #%d must be shaped [%d, featureSize], got %v",
				idx, seq.graphs[idx].NumNodes(), shape)
		}
		features[ii] = f
	}

	masks := make([]bool, batchSize*maxNodes)
	adjs := make([]float32, 0, batchSize*maxNodes*maxNodes)
	for ii, idx := range batchOrder {
		numNodes := seq.graphs[idx].NumNodes()
		for node := range numNodes {
			masks[ii*maxNodes+node] = true
		}
		adjs = append(adjs, seq.adjs[idx].Resize(maxNodes).Values...)
	}

	batch := &Batch{}
	err := catchErrors(func() error {
		batch.Inputs = []*tensors.Tensor{
			stackPaddedRows(features, maxNodes),
			tensors.FromFlatDataAndDimensions(masks, batchSize, maxNodes),
			tensors.FromFlatDataAndDimensions(adjs, batchSize, maxNodes, maxNodes),
		}
		if seq.targets != nil {
			batch.Targets = gatherRows(seq.targets, batchOrder)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "while generating graph batch %d", index)
	}
	return batch, nil
}

// OnEpochEnd implements Sequence: it restarts the ordering of the graphs, shuffling them if so configured.
func (seq *GraphSequence) OnEpochEnd() {
	if seq.shuffle {
		seq.order = seq.rng.Perm(len(seq.graphs))
		klog.V(2).Infof("graph sequence: shuffled %d graphs", len(seq.graphs))
		return
	}
	if len(seq.order) != len(seq.graphs) {
		seq.order = make([]int, len(seq.graphs))
	}
	for ii := range seq.order {
		seq.order[ii] = ii
	}
}

// Order returns the current ordering of the graphs: batch i holds the graphs Order()[i*BatchSize():(i+1)*BatchSize()].
func (seq *GraphSequence) Order() []int {
	return slices.Clone(seq.order)
}
