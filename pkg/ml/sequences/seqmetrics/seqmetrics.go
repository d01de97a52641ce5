// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package seqmetrics exports Prometheus metrics for sequences.Sequence: batches generated, failures,
// epochs and the time to generate each batch.
//
// Example:
//
//	metrics := seqmetrics.New(prometheus.DefaultRegisterer)
//	seq = metrics.Instrument("train", seq)
//	ds := sequences.NewDataset("train", seq)
package seqmetrics

import (
	"time"

	"github.com/gomlx/graphseq/pkg/ml/sequences"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by all instrumented sequences.
// Each sequence is identified by the "sequence" label.
type Metrics struct {
	BatchesTotal  *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	EpochsTotal   *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec
}

// Error kinds used in the "kind" label of graphseq_batch_errors_total.
const (
	KindOutOfRange   = "out_of_range"
	KindValidation   = "validation"
	KindTypeMismatch = "type_mismatch"
	KindOther        = "other"
)

// New creates the metrics and registers them with reg.
//
// It panics if the metrics are already registered in reg, like promauto.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		BatchesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphseq_batches_total",
				Help: "Total number of batches generated",
			},
			[]string{"sequence"},
		),
		ErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphseq_batch_errors_total",
				Help: "Total number of failures to generate a batch",
			},
			[]string{"sequence", "kind"},
		),
		EpochsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphseq_epochs_total",
				Help: "Total number of epochs ended",
			},
			[]string{"sequence"},
		),
		BatchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graphseq_batch_duration_seconds",
				Help:    "Time to generate a batch in seconds",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"sequence"},
		),
	}
}

// ErrorKind classifies err for the "kind" label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, sequences.ErrOutOfRange):
		return KindOutOfRange
	case errors.Is(err, sequences.ErrValidation):
		return KindValidation
	case errors.Is(err, sequences.ErrTypeMismatch):
		return KindTypeMismatch
	default:
		return KindOther
	}
}

// Instrument returns a sequence that yields the batches of seq, recording the metrics under the given name.
//
// The returned sequence implements sequences.FullBatchSource or sequences.HopListSource if seq does,
// so it can still be wrapped by sequences.NewCorruptedSequence.
func (m *Metrics) Instrument(name string, seq sequences.Sequence) sequences.Sequence {
	base := &instrumented{Sequence: seq, name: name, metrics: m}
	if full, ok := seq.(sequences.FullBatchSource); ok && full.HasFullBatchLayout() {
		return &instrumentedFullBatch{instrumented: base, source: full}
	}
	if hops, ok := seq.(sequences.HopListSource); ok && hops.HasHopListLayout() {
		return &instrumentedHopList{instrumented: base, source: hops}
	}
	return base
}

type instrumented struct {
	sequences.Sequence
	name    string
	metrics *Metrics
}

// Batch implements sequences.Sequence.
func (s *instrumented) Batch(index int) (*sequences.Batch, error) {
	start := time.Now()
	batch, err := s.Sequence.Batch(index)
	if err != nil {
		s.metrics.ErrorsTotal.WithLabelValues(s.name, ErrorKind(err)).Inc()
		return nil, err
	}
	s.metrics.BatchDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	s.metrics.BatchesTotal.WithLabelValues(s.name).Inc()
	return batch, nil
}

// OnEpochEnd implements sequences.Sequence.
func (s *instrumented) OnEpochEnd() {
	s.metrics.EpochsTotal.WithLabelValues(s.name).Inc()
	s.Sequence.OnEpochEnd()
}

type instrumentedFullBatch struct {
	*instrumented
	source sequences.FullBatchSource
}

func (s *instrumentedFullBatch) NumTargetIndices() int    { return s.source.NumTargetIndices() }
func (s *instrumentedFullBatch) HasFullBatchLayout() bool { return s.source.HasFullBatchLayout() }

type instrumentedHopList struct {
	*instrumented
	source sequences.HopListSource
}

func (s *instrumentedHopList) BatchSize() int         { return s.source.BatchSize() }
func (s *instrumentedHopList) HasHopListLayout() bool { return s.source.HasHopListLayout() }
