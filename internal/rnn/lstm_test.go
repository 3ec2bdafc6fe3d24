package rnn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"melody-forge/internal/graph"
)

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func TestCellStepMatchesGateEquations(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cell := NewCell("test", 1, 1, rng)
	// Kernel rows are [x, h], columns are i, j, f, o.
	cell.Kernel.Value = mat.NewDense(2, 4, []float64{
		0.5, -0.25, 0.1, 0.3,
		0.2, 0.4, -0.6, 0.7,
	})
	cell.Bias.Value = mat.NewDense(1, 4, []float64{0.1, 0, 0, -0.1})

	g := graph.New(false)
	x := g.Constant(mat.NewDense(1, 1, []float64{2}))
	prev := NodeState{
		C: g.Constant(mat.NewDense(1, 1, []float64{0.5})),
		H: g.Constant(mat.NewDense(1, 1, []float64{-1})),
	}
	next := cell.Step(g, x, prev)

	i := sigmoid(0.5*2 + 0.2*-1 + 0.1)
	j := math.Tanh(-0.25*2 + 0.4*-1)
	f := sigmoid(0.1*2 - 0.6*-1 + 1)
	o := sigmoid(0.3*2 + 0.7*-1 - 0.1)
	c := 0.5*f + i*j
	h := math.Tanh(c) * o

	if got := next.C.Value.At(0, 0); math.Abs(got-c) > 1e-12 {
		t.Fatalf("c=%f want %f", got, c)
	}
	if got := next.H.Value.At(0, 0); math.Abs(got-h) > 1e-12 {
		t.Fatalf("h=%f want %f", got, h)
	}
}

func TestDynamicShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	const batch, steps, in, hidden, depth = 3, 4, 5, 6, 2
	stack := NewMultiCell(depth, in, hidden, rng)

	g := graph.New(false)
	inputs := make([]*graph.Node, steps)
	for i := range inputs {
		inputs[i] = g.Constant(mat.NewDense(batch, in, nil))
	}
	outputs, last := Dynamic(g, stack, inputs, stack.ZeroState(batch))
	if len(outputs) != steps {
		t.Fatalf("expected %d outputs, got %d", steps, len(outputs))
	}
	for _, o := range outputs {
		if r, c := o.Dims(); r != batch || c != hidden {
			t.Fatalf("output dims %dx%d", r, c)
		}
	}
	state := Values(last)
	if len(state) != depth {
		t.Fatalf("expected %d layers, got %d", depth, len(state))
	}
	if r, c := state[1].H.Dims(); r != batch || c != hidden {
		t.Fatalf("state dims %dx%d", r, c)
	}
	if len(stack.Params()) != 2*depth {
		t.Fatalf("expected %d params, got %d", 2*depth, len(stack.Params()))
	}
	if stack.Cells[0].InputSize() != in || stack.Cells[1].InputSize() != hidden {
		t.Fatalf("unexpected layer input sizes")
	}
}
