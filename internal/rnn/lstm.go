// Package rnn holds the LSTM cell bank used by the sequence model.
package rnn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"melody-forge/internal/graph"
)

// LayerState is the (c, h) pair of one LSTM layer, each BatchxHidden.
type LayerState struct {
	C *mat.Dense
	H *mat.Dense
}

// State holds one LayerState per stacked layer, bottom first.
type State []LayerState

// NodeState is a LayerState living on a graph.
type NodeState struct {
	C *graph.Node
	H *graph.Node
}

// Cell is a basic LSTM cell. The kernel maps [x, h] to the four gate
// pre-activations laid out as i, j, f, o.
type Cell struct {
	Kernel     *graph.Node
	Bias       *graph.Node
	ForgetBias float64

	inputSize  int
	hiddenSize int
}

// NewCell creates a cell with a Glorot-uniform kernel and zero bias.
func NewCell(name string, inputSize, hiddenSize int, rng *rand.Rand) *Cell {
	rows, cols := inputSize+hiddenSize, 4*hiddenSize
	limit := math.Sqrt(6 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return &Cell{
		Kernel:     graph.NewParam(name+"/kernel", mat.NewDense(rows, cols, data)),
		Bias:       graph.NewParam(name+"/bias", mat.NewDense(1, cols, nil)),
		ForgetBias: 1.0,
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
	}
}

// InputSize returns the width of x accepted by Step.
func (c *Cell) InputSize() int { return c.inputSize }

// HiddenSize returns the width of c and h.
func (c *Cell) HiddenSize() int { return c.hiddenSize }

// Params returns the trainable nodes of the cell.
func (c *Cell) Params() []*graph.Node { return []*graph.Node{c.Kernel, c.Bias} }

// Step advances the cell by one time step.
func (c *Cell) Step(g *graph.Graph, x *graph.Node, s NodeState) NodeState {
	z := g.AddBias(g.MatMul(g.Concat(x, s.H), c.Kernel), c.Bias)
	n := c.hiddenSize
	i := g.Sigmoid(g.SliceCols(z, 0, n))
	j := g.Tanh(g.SliceCols(z, n, 2*n))
	f := g.Sigmoid(g.AddConst(g.SliceCols(z, 2*n, 3*n), c.ForgetBias))
	o := g.Sigmoid(g.SliceCols(z, 3*n, 4*n))

	next := g.Add(g.Mul(s.C, f), g.Mul(i, j))
	return NodeState{C: next, H: g.Mul(g.Tanh(next), o)}
}

// MultiCell stacks cells so each layer feeds the next.
type MultiCell struct {
	Cells []*Cell
}

// NewMultiCell builds depth layers of hiddenSize units. The bottom layer
// reads inputSize-wide inputs.
func NewMultiCell(depth, inputSize, hiddenSize int, rng *rand.Rand) *MultiCell {
	cells := make([]*Cell, depth)
	in := inputSize
	for d := range cells {
		cells[d] = NewCell(fmt.Sprintf("rnn/cell_%d", d), in, hiddenSize, rng)
		in = hiddenSize
	}
	return &MultiCell{Cells: cells}
}

// Depth returns the number of stacked layers.
func (m *MultiCell) Depth() int { return len(m.Cells) }

// Params returns every trainable node of the stack.
func (m *MultiCell) Params() []*graph.Node {
	var out []*graph.Node
	for _, c := range m.Cells {
		out = append(out, c.Params()...)
	}
	return out
}

// ZeroState returns an all-zero state for batch sequences.
func (m *MultiCell) ZeroState(batch int) State {
	s := make(State, len(m.Cells))
	for d, c := range m.Cells {
		s[d] = LayerState{
			C: mat.NewDense(batch, c.hiddenSize, nil),
			H: mat.NewDense(batch, c.hiddenSize, nil),
		}
	}
	return s
}

// Step runs x through every layer and returns the top output.
func (m *MultiCell) Step(g *graph.Graph, x *graph.Node, states []NodeState) (*graph.Node, []NodeState) {
	next := make([]NodeState, len(m.Cells))
	in := x
	for d, c := range m.Cells {
		next[d] = c.Step(g, in, states[d])
		in = next[d].H
	}
	return in, next
}

// Dynamic unrolls the stack over inputs, one BatchxInput node per time step.
// It returns the top-layer output of every step and the final state.
func Dynamic(g *graph.Graph, m *MultiCell, inputs []*graph.Node, initial State) ([]*graph.Node, []NodeState) {
	if len(initial) != len(m.Cells) {
		panic(fmt.Sprintf("rnn: state for %d layers, stack has %d", len(initial), len(m.Cells)))
	}
	states := make([]NodeState, len(initial))
	for d, s := range initial {
		states[d] = NodeState{C: g.Constant(s.C), H: g.Constant(s.H)}
	}
	outputs := make([]*graph.Node, len(inputs))
	for t, x := range inputs {
		outputs[t], states = m.Step(g, x, states)
	}
	return outputs, states
}

// Values detaches a graph state into plain matrices.
func Values(states []NodeState) State {
	s := make(State, len(states))
	for d, ns := range states {
		s[d] = LayerState{C: ns.C.Value, H: ns.H.Value}
	}
	return s
}
