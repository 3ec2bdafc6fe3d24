package model

import "errors"

var (
	// ErrConflictingModes reports a request to train and validate on the
	// same graph.
	ErrConflictingModes = errors.New("model: training and validation are mutually exclusive")

	// ErrUnknownMode reports a Mode outside Train, Validate and Infer.
	ErrUnknownMode = errors.New("model: unknown mode")

	// ErrShape reports an input tensor that does not match the config.
	ErrShape = errors.New("model: shape mismatch")

	// ErrVocabRange reports an ID outside the padded vocabulary.
	ErrVocabRange = errors.New("model: id outside vocabulary")

	// ErrParamsMismatch reports Params built for a different architecture.
	ErrParamsMismatch = errors.New("model: params do not match config")

	// ErrStepApplied reports a second TrainOp on the same graph.
	ErrStepApplied = errors.New("model: train op already applied")
)

// Batch pairs input sequences with their target sequences.
type Batch struct {
	Inputs  IDs
	Targets IDs
}

// Model defines the training functionality the trainer drives.
type Model interface {
	TrainStep(batch Batch) (float64, error)
	Validate(batch Batch) ([][]int, error)
}
