// Package graph is a small reverse-mode autodiff tape over gonum matrices.
//
// Every op computes its value eagerly and, when the graph needs backprop,
// records a closure that pushes the output gradient into its inputs.
// Backward replays the closures in reverse order.
package graph

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoBackprop is returned by Backward on a graph built for inference.
	ErrNoBackprop = errors.New("graph: built without backprop")

	// ErrNotScalar is returned by Backward when the loss is not 1x1.
	ErrNotScalar = errors.New("graph: loss must be a 1x1 node")
)

// Node is a matrix value on the tape together with its gradient.
//
// Node is not safe for concurrent use.
type Node struct {
	Value *mat.Dense
	grad  *mat.Dense
	name  string
}

// NewParam wraps value as a named trainable node. Params outlive graphs:
// their gradients accumulate across every graph that reads them until the
// optimizer zeroes them.
func NewParam(name string, value *mat.Dense) *Node {
	return &Node{Value: value, name: name}
}

// Name returns the parameter name, or "" for intermediate nodes.
func (n *Node) Name() string { return n.name }

// Dims returns the rows and columns of the value.
func (n *Node) Dims() (int, int) { return n.Value.Dims() }

// Grad returns the gradient, allocating a zero matrix on first use.
func (n *Node) Grad() *mat.Dense {
	if n.grad == nil {
		r, c := n.Value.Dims()
		n.grad = mat.NewDense(r, c, nil)
	}
	return n.grad
}

// HasGrad reports whether any gradient reached the node.
func (n *Node) HasGrad() bool { return n.grad != nil }

// ZeroGrad clears the gradient.
func (n *Node) ZeroGrad() {
	if n.grad != nil {
		n.grad.Zero()
	}
}

// Graph records backprop closures for the ops built on it.
type Graph struct {
	needsBackprop bool
	backprop      []func()
}

// New creates an empty graph.
func New(needsBackprop bool) *Graph {
	return &Graph{needsBackprop: needsBackprop}
}

// NeedsBackprop reports whether ops record gradients.
func (g *Graph) NeedsBackprop() bool { return g.needsBackprop }

// Len returns the number of recorded backprop closures.
func (g *Graph) Len() int { return len(g.backprop) }

// Constant wraps v as a node that is not a parameter.
func (g *Graph) Constant(v *mat.Dense) *Node {
	return &Node{Value: v}
}

// Backward seeds d(loss)=1 and runs every recorded closure in reverse.
// The tape is released afterwards.
func (g *Graph) Backward(loss *Node) error {
	if !g.needsBackprop {
		return ErrNoBackprop
	}
	if r, c := loss.Dims(); r != 1 || c != 1 {
		return fmt.Errorf("%w: got %dx%d", ErrNotScalar, r, c)
	}
	loss.Grad().Set(0, 0, 1)
	for i := len(g.backprop) - 1; i >= 0; i-- {
		g.backprop[i]()
	}
	g.backprop = nil
	return nil
}

func (g *Graph) addBackprop(f func()) {
	if g.needsBackprop {
		g.backprop = append(g.backprop, f)
	}
}

func newNode(r, c int) *Node {
	return &Node{Value: mat.NewDense(r, c, nil)}
}

func assertSameDims(op string, a, b *Node) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(fmt.Sprintf("graph: %s dims %dx%d vs %dx%d", op, ar, ac, br, bc))
	}
}
