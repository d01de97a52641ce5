// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package seqconfig configures sequences from YAML, so the batching of a training run can be
// set alongside its other hyperparameters:
//
//	name: cora-train
//	batch_size: 64
//	shuffle: true
//	seed: 42
//	sparse: false
//
// The configuration is validated when parsed, and used to build any of the sequences of the
// sequences package.
package seqconfig

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/graphseq/pkg/ml/sequences"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// validate is shared by all configurations, it caches the struct tags parsing.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Config of a sequence.
type Config struct {
	// Name of the sequence, used for the train.Dataset name and metrics labels.
	Name string `yaml:"name" validate:"required,max=128"`

	// BatchSize is the number of entities (nodes, links or graphs) per batch.
	// Not used by full-batch sequences.
	BatchSize int `yaml:"batch_size" validate:"min=1"`

	// Shuffle at the end of every epoch. Defaults to true if not set.
	Shuffle *bool `yaml:"shuffle"`

	// Seed for the random number generator used for shuffling and corruption.
	// If not set, a random seed is used.
	Seed *uint64 `yaml:"seed"`

	// Sparse selects the coordinate format for the adjacency matrices of full-batch sequences.
	Sparse bool `yaml:"sparse"`
}

// Parse a YAML configuration and validate it. Unknown fields are an error.
func Parse(data []byte) (*Config, error) {
	config := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && err != io.EOF {
		return nil, errors.Wrapf(sequences.ErrValidation, "seqconfig: failed to parse YAML: %v", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load reads and parses the YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "seqconfig: failed to read %q", path)
	}
	config, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %q", path)
	}
	klog.V(1).Infof("seqconfig: loaded %q from %q", config.Name, path)
	return config, nil
}

// Validate the configuration. Errors wrap sequences.ErrValidation.
func (c *Config) Validate() error {
	if c == nil {
		return errors.Wrap(sequences.ErrValidation, "seqconfig: nil configuration")
	}
	if err := validate.Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			parts := make([]string, 0, len(validationErrs))
			for _, fieldErr := range validationErrs {
				parts = append(parts, fmt.Sprintf("%s: failed on %q (value %v)",
					fieldErr.Field(), fieldErr.Tag(), fieldErr.Value()))
			}
			return errors.Wrapf(sequences.ErrValidation, "seqconfig: %s", strings.Join(parts, "; "))
		}
		return errors.Wrapf(sequences.ErrValidation, "seqconfig: %v", err)
	}
	return nil
}

// ShuffleEnabled returns whether to shuffle at every epoch: Shuffle if set, or true.
func (c *Config) ShuffleEnabled() bool {
	return c.Shuffle == nil || *c.Shuffle
}

// NewNodeSequence creates a sequences.EntitySequence over the node ids, configured by c.
func NewNodeSequence[ID any](c *Config, sampleFn sequences.SampleFunc[ID], ids []ID, targets *tensors.Tensor) (
	*sequences.EntitySequence[ID], error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	seq, err := sequences.NewNodeSequence(sampleFn, c.BatchSize, ids, targets)
	if err != nil {
		return nil, err
	}
	return configureEntities(c, seq), nil
}

// NewLinkSequence creates a sequences.EntitySequence over the links, configured by c.
func NewLinkSequence[ID any](c *Config, sampleFn sequences.SampleFunc[sequences.Link[ID]], links []sequences.Link[ID],
	targets *tensors.Tensor) (*sequences.EntitySequence[sequences.Link[ID]], error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	seq, err := sequences.NewLinkSequence(sampleFn, c.BatchSize, links, targets)
	if err != nil {
		return nil, err
	}
	return configureEntities(c, seq), nil
}

func configureEntities[ID any](c *Config, seq *sequences.EntitySequence[ID]) *sequences.EntitySequence[ID] {
	seq.Shuffle(c.ShuffleEnabled())
	if c.Seed != nil {
		seq.WithSeed(*c.Seed)
	}
	return seq
}

// NewOnDemandLinkSequence creates a sequences.OnDemandLinkSequence with the batches planned by sampler,
// configured by c. The seed is not used: the sampler owns its randomness.
func NewOnDemandLinkSequence[ID any](c *Config, sampleFn sequences.SampleFunc[sequences.Link[ID]],
	sampler sequences.PairSampler[ID]) (*sequences.OnDemandLinkSequence[ID], error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	seq, err := sequences.NewOnDemandLinkSequence(sampleFn, c.BatchSize, sampler)
	if err != nil {
		return nil, err
	}
	return seq.Shuffle(c.ShuffleEnabled()), nil
}

// FullBatchSequence creates a dense or sparse (if c.Sparse) sequences.FullBatchSequence.
func (c *Config) FullBatchSequence(features *tensors.Tensor, adj any, targets *tensors.Tensor, indices []int32) (
	*sequences.FullBatchSequence, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Sparse {
		return sequences.NewSparseFullBatchSequence(features, adj, targets, indices)
	}
	return sequences.NewFullBatchSequence(features, adj, targets, indices)
}

// RelationalFullBatchSequence creates a sequences.RelationalFullBatchSequence, sparse if c.Sparse.
func (c *Config) RelationalFullBatchSequence(features *tensors.Tensor, adjs []any, targets *tensors.Tensor,
	indices []int32) (*sequences.RelationalFullBatchSequence, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return sequences.NewRelationalFullBatchSequence(features, adjs, c.Sparse, targets, indices)
}

// GraphSequence creates a sequences.GraphSequence configured by c.
func (c *Config) GraphSequence(graphs []sequences.Graph, targets *tensors.Tensor, normalize sequences.NormalizeFunc) (
	*sequences.GraphSequence, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	seq, err := sequences.NewGraphSequence(graphs, targets, c.BatchSize, normalize)
	if err != nil {
		return nil, err
	}
	seq.Shuffle(c.ShuffleEnabled())
	if c.Seed != nil {
		seq.WithSeed(*c.Seed)
	}
	return seq, nil
}

// CorruptedSequence wraps source with a sequences.CorruptedSequence, seeded with c.Seed if set.
func (c *Config) CorruptedSequence(source sequences.Sequence) (*sequences.CorruptedSequence, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	seq, err := sequences.NewCorruptedSequence(source)
	if err != nil {
		return nil, err
	}
	if c.Seed != nil {
		seq.WithSeed(*c.Seed)
	}
	return seq, nil
}

// Dataset returns a train.Dataset named c.Name yielding the batches of seq.
func (c *Config) Dataset(seq sequences.Sequence) *sequences.Dataset {
	return sequences.NewDataset(c.Name, seq)
}
