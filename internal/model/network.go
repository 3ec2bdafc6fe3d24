package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"melody-forge/internal/rnn"
)

// Network binds shared Params to a config and learning rate so a driver can
// train and evaluate without rebuilding the plumbing for every batch.
type Network struct {
	cfg    Config
	params *Params
	lr     float64
}

// NewNetwork constructs the weights with random initialization.
func NewNetwork(cfg Config, learningRate float64, seed int64) (*Network, error) {
	if learningRate <= 0 {
		return nil, fmt.Errorf("model: learning rate must be > 0 (got %g)", learningRate)
	}
	params, err := NewParams(cfg, seed)
	if err != nil {
		return nil, err
	}
	return &Network{cfg: cfg, params: params, lr: learningRate}, nil
}

// Config returns the training config.
func (n *Network) Config() Config { return n.cfg }

// Params returns the shared weights.
func (n *Network) Params() *Params { return n.params }

// TrainStep runs one optimizer step on batch and returns its mean loss.
func (n *Network) TrainStep(batch Batch) (float64, error) {
	g, err := BuildTrain(n.params, batch.Inputs, batch.Targets, n.cfg, n.lr)
	if err != nil {
		return 0, err
	}
	if err := g.TrainOp(); err != nil {
		return 0, err
	}
	return g.TotalLoss(), nil
}

// Validate returns the arg-max prediction for batch.Inputs.
func (n *Network) Validate(batch Batch) ([][]int, error) {
	g, err := BuildValidate(n.params, batch.Inputs, n.cfg)
	if err != nil {
		return nil, err
	}
	return g.Prediction(), nil
}

// Predict runs inference on input of any batch size, optionally continuing
// from state. It returns the probabilities and the state after the last step.
func (n *Network) Predict(input IDs, state rnn.State) (*mat.Dense, rnn.State, error) {
	var opts []Option
	if state != nil {
		opts = append(opts, WithInitialState(state))
	}
	g, err := BuildInfer(n.params, input, n.cfg.WithBatchSize(input.Batch), opts...)
	if err != nil {
		return nil, nil, err
	}
	return g.Prediction(), g.LastState(), nil
}
