package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"melody-forge/internal/graph"
	"melody-forge/internal/rnn"
)

// Graph is what every mode-specific build returns.
type Graph interface {
	Mode() Mode
	LastState() rnn.State
	// EmbeddedShape is the shape of the looked-up inputs: batch x time x
	// hidden, or batch x time x codes x hidden before the code axis is summed.
	EmbeddedShape() []int
	// InputShape is the batch x time x hidden tensor fed to the recurrence.
	InputShape() []int
}

// Option adjusts a build.
type Option func(*buildOptions)

type buildOptions struct {
	initial rnn.State
}

// WithInitialState starts the recurrence from s instead of zeros. It is how
// a caller carries LastState of one graph into the next.
func WithInitialState(s rnn.State) Option {
	return func(o *buildOptions) { o.initial = s }
}

// Build constructs the graph for mode. output is read only in Train mode.
func Build(p *Params, input, output IDs, cfg Config, learningRate float64, mode Mode, opts ...Option) (Graph, error) {
	switch mode {
	case Train:
		g, err := BuildTrain(p, input, output, cfg, learningRate, opts...)
		if err != nil {
			return nil, err
		}
		return g, nil
	case Validate:
		g, err := BuildValidate(p, input, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return g, nil
	case Infer:
		g, err := BuildInfer(p, input, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}
}

// BuildFromFlags is Build with the mode given as a training/validation flag
// pair. Conflicting flags fail before anything is built.
func BuildFromFlags(p *Params, input, output IDs, cfg Config, learningRate float64, isTraining, isValid bool, opts ...Option) (Graph, error) {
	mode, err := ModeFromFlags(isTraining, isValid)
	if err != nil {
		return nil, err
	}
	return Build(p, input, output, cfg, learningRate, mode, opts...)
}

// core holds what every mode computes before branching.
type core struct {
	g             *graph.Graph
	steps         int
	initial       rnn.State
	embeddedShape []int
	inputShape    []int
	output        *graph.Node
	logits        *graph.Node
	last          rnn.State
}

func (c *core) LastState() rnn.State { return c.last }

func (c *core) EmbeddedShape() []int { return c.embeddedShape }

func (c *core) InputShape() []int { return c.inputShape }

func forward(p *Params, input IDs, cfg Config, needsBackprop bool, opts []Option) (*core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := p.check(cfg); err != nil {
		return nil, err
	}
	if err := input.check("input", cfg.BatchSize, cfg.Codes(), cfg.Classes()); err != nil {
		return nil, err
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	initial := o.initial
	if initial == nil {
		initial = p.Cells.ZeroState(cfg.BatchSize)
	} else if err := checkState(initial, cfg); err != nil {
		return nil, err
	}

	batch, steps, hidden := cfg.BatchSize, input.Steps, cfg.RNNHiddenSize
	c := &core{
		g:          graph.New(needsBackprop),
		steps:      steps,
		initial:    initial,
		inputShape: []int{batch, steps, hidden},
	}
	g := c.g

	inputs := g.Gather(p.Embedding, input.Data)
	if cfg.InputDim == 1 {
		c.embeddedShape = []int{batch, steps, hidden}
	} else {
		c.embeddedShape = []int{batch, steps, cfg.Codes(), hidden}
		inputs = g.SumGroups(inputs, cfg.Codes())
	}

	perStep := make([]*graph.Node, steps)
	rows := make([]int, batch)
	for t := range perStep {
		for b := range rows {
			rows[b] = b*steps + t
		}
		perStep[t] = g.Gather(inputs, append([]int(nil), rows...))
	}

	outputs, last := rnn.Dynamic(g, p.Cells, perStep, initial)
	c.last = rnn.Values(last)
	c.output = g.Interleave(outputs)
	c.logits = g.AddBias(g.MatMul(c.output, p.Weights), p.Bias)
	return c, nil
}

func checkState(s rnn.State, cfg Config) error {
	if len(s) != cfg.NumLayers {
		return fmt.Errorf("%w: initial state has %d layers, want %d", ErrShape, len(s), cfg.NumLayers)
	}
	for d, layer := range s {
		for _, m := range []*mat.Dense{layer.C, layer.H} {
			if m == nil {
				return fmt.Errorf("%w: initial state layer %d is empty", ErrShape, d)
			}
			if r, c := m.Dims(); r != cfg.BatchSize || c != cfg.RNNHiddenSize {
				return fmt.Errorf("%w: initial state layer %d is %dx%d, want %dx%d",
					ErrShape, d, r, c, cfg.BatchSize, cfg.RNNHiddenSize)
			}
		}
	}
	return nil
}

// TrainGraph holds the handles of a training build.
type TrainGraph struct {
	*core
	params    *Params
	rate      float64
	loss      *graph.Node
	totalLoss float64
	applied   bool
	gradNorm  float64
}

// BuildTrain builds the loss and optimizer step for one batch.
func BuildTrain(p *Params, input, output IDs, cfg Config, learningRate float64, opts ...Option) (*TrainGraph, error) {
	if learningRate <= 0 {
		return nil, fmt.Errorf("model: learning rate must be > 0 (got %g)", learningRate)
	}
	if err := output.check("output", cfg.BatchSize, 1, cfg.Classes()); err != nil {
		return nil, err
	}
	if output.Steps != input.Steps {
		return nil, fmt.Errorf("%w: output has %d steps, input has %d", ErrShape, output.Steps, input.Steps)
	}
	c, err := forward(p, input, cfg, true, opts)
	if err != nil {
		return nil, err
	}

	labels := graph.OneHot(output.Data, cfg.Classes())
	loss := c.g.Mean(c.g.SoftmaxCrossEntropy(c.logits, labels))
	return &TrainGraph{
		core:      c,
		params:    p,
		rate:      learningRate,
		loss:      loss,
		totalLoss: loss.Value.At(0, 0),
	}, nil
}

func (m *TrainGraph) Mode() Mode { return Train }

// InitialState is the state the recurrence started from.
func (m *TrainGraph) InitialState() rnn.State { return m.initial }

// Output is the top-layer LSTM output, (batch*time) x hidden.
func (m *TrainGraph) Output() *mat.Dense { return m.output.Value }

// TotalLoss is the mean softmax cross entropy over every step.
func (m *TrainGraph) TotalLoss() float64 { return m.totalLoss }

// GradNorm is the global gradient norm consumed by TrainOp.
func (m *TrainGraph) GradNorm() float64 { return m.gradNorm }

// TrainOp backpropagates TotalLoss and applies one Adam update to the
// shared Params. It can run once per graph.
func (m *TrainGraph) TrainOp() error {
	if m.applied {
		return ErrStepApplied
	}
	m.applied = true
	if err := m.g.Backward(m.loss); err != nil {
		return fmt.Errorf("model: backward: %w", err)
	}
	m.gradNorm = m.params.Optimizer().Step(m.params.Trainable(), m.rate)
	return nil
}

// ValidateGraph holds the handles of a validation build.
type ValidateGraph struct {
	*core
	prediction [][]int
}

// BuildValidate builds the arg-max prediction for one batch.
func BuildValidate(p *Params, input IDs, cfg Config, opts ...Option) (*ValidateGraph, error) {
	c, err := forward(p, input, cfg, false, opts)
	if err != nil {
		return nil, err
	}
	classes := graph.ArgMax(graph.Softmax(c.logits.Value))
	pred := make([][]int, cfg.BatchSize)
	for b := range pred {
		pred[b] = classes[b*c.steps : (b+1)*c.steps]
	}
	return &ValidateGraph{core: c, prediction: pred}, nil
}

func (m *ValidateGraph) Mode() Mode { return Validate }

// Prediction is the most likely class per step, batch x time.
func (m *ValidateGraph) Prediction() [][]int { return m.prediction }

// InferGraph holds the handles of an inference build.
type InferGraph struct {
	*core
	prediction *mat.Dense
}

// BuildInfer builds the next-note distribution for every step.
func BuildInfer(p *Params, input IDs, cfg Config, opts ...Option) (*InferGraph, error) {
	c, err := forward(p, input, cfg, false, opts)
	if err != nil {
		return nil, err
	}
	return &InferGraph{core: c, prediction: graph.Softmax(c.logits.Value)}, nil
}

func (m *InferGraph) Mode() Mode { return Infer }

// InitialState is the state the recurrence started from.
func (m *InferGraph) InitialState() rnn.State { return m.initial }

// Prediction holds one probability row per flattened step,
// (batch*time) x (vocab+1).
func (m *InferGraph) Prediction() *mat.Dense { return m.prediction }
