package model

import (
	"errors"
	"fmt"
)

// Config is the immutable shape record the builder reads.
type Config struct {
	RNNHiddenSize int
	NumLayers     int
	BatchSize     int
	NoteDictSize  int
	// InputDim is 1 when every step carries a single ID. Any other value is
	// the fixed number of codes active per step; their embeddings are summed.
	InputDim int
}

// Validate verifies the config describes a buildable model.
func (c Config) Validate() error {
	if c.RNNHiddenSize <= 0 {
		return fmt.Errorf("model: rnn_hidden_size must be > 0 (got %d)", c.RNNHiddenSize)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("model: num_layers must be > 0 (got %d)", c.NumLayers)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("model: batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.NoteDictSize <= 0 {
		return fmt.Errorf("model: note_dict_size must be > 0 (got %d)", c.NoteDictSize)
	}
	if c.InputDim <= 0 {
		return errors.New("model: input_dim must be 1 or the code length")
	}
	return nil
}

// Classes is the padded vocabulary size: every note plus one pad slot.
func (c Config) Classes() int { return c.NoteDictSize + 1 }

// PadID is the extra vocabulary slot used for padding and unknown notes.
func (c Config) PadID() int { return c.NoteDictSize }

// Codes is the length of the code axis of the input tensor.
func (c Config) Codes() int {
	if c.InputDim == 1 {
		return 1
	}
	return c.InputDim
}

// WithBatchSize returns a copy of c for a different batch size. Weights do
// not depend on the batch size, so the copy can share Params with c.
func (c Config) WithBatchSize(n int) Config {
	c.BatchSize = n
	return c
}
