package graph

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func randParam(rng *rand.Rand, name string, r, c int) *Node {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return NewParam(name, mat.NewDense(r, c, data))
}

// checkGradients compares Backward against central differences.
func checkGradients(t *testing.T, params []*Node, build func(g *Graph) *Node) {
	t.Helper()
	g := New(true)
	loss := build(g)
	if err := g.Backward(loss); err != nil {
		t.Fatalf("Backward: %v", err)
	}
	const eps = 1e-5
	for _, p := range params {
		r, c := p.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				orig := p.Value.At(i, j)
				p.Value.Set(i, j, orig+eps)
				up := build(New(false)).Value.At(0, 0)
				p.Value.Set(i, j, orig-eps)
				down := build(New(false)).Value.At(0, 0)
				p.Value.Set(i, j, orig)

				numeric := (up - down) / (2 * eps)
				analytic := p.Grad().At(i, j)
				if math.Abs(numeric-analytic) > 1e-6*math.Max(1, math.Abs(numeric)) {
					t.Fatalf("%s[%d,%d]: analytic=%.8f numeric=%.8f", p.Name(), i, j, analytic, numeric)
				}
			}
		}
	}
}

func TestEmbeddingProjectionGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	emb := randParam(rng, "embedding", 5, 3)
	w := randParam(rng, "weights", 3, 5)
	b := randParam(rng, "bias", 1, 5)
	ids := []int{0, 4, 2, 2, 1, 3}
	labels := OneHot([]int{1, 4, 3}, 5)

	checkGradients(t, []*Node{emb, w, b}, func(g *Graph) *Node {
		x := g.SumGroups(g.Gather(emb, ids), 2)
		h := g.Tanh(x)
		logits := g.AddBias(g.MatMul(h, w), b)
		return g.Mean(g.SoftmaxCrossEntropy(logits, labels))
	})
}

func TestGateGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := randParam(rng, "x", 2, 3)
	h := randParam(rng, "h", 2, 2)
	k := randParam(rng, "kernel", 5, 4)

	checkGradients(t, []*Node{x, h, k}, func(g *Graph) *Node {
		z := g.MatMul(g.Concat(x, h), k)
		i := g.Sigmoid(g.SliceCols(z, 0, 2))
		f := g.Sigmoid(g.AddConst(g.SliceCols(z, 2, 4), 1))
		c := g.Add(g.Mul(f, h), g.Mul(i, g.Tanh(h)))
		return g.Mean(g.Interleave([]*Node{c, i, f}))
	})
}

func TestInterleaveOrder(t *testing.T) {
	g := New(false)
	s0 := g.Constant(mat.NewDense(2, 1, []float64{0, 10}))
	s1 := g.Constant(mat.NewDense(2, 1, []float64{1, 11}))
	s2 := g.Constant(mat.NewDense(2, 1, []float64{2, 12}))
	out := g.Interleave([]*Node{s0, s1, s2})
	want := []float64{0, 1, 2, 10, 11, 12}
	for i, v := range want {
		if got := out.Value.At(i, 0); got != v {
			t.Fatalf("row %d = %v, want %v", i, got, v)
		}
	}
}

func TestBackwardErrors(t *testing.T) {
	g := New(false)
	loss := g.Constant(mat.NewDense(1, 1, []float64{1}))
	if err := g.Backward(loss); !errors.Is(err, ErrNoBackprop) {
		t.Fatalf("expected ErrNoBackprop, got %v", err)
	}
	g = New(true)
	if err := g.Backward(g.Constant(mat.NewDense(2, 1, nil))); !errors.Is(err, ErrNotScalar) {
		t.Fatalf("expected ErrNotScalar, got %v", err)
	}
}

func TestSoftmaxArgMax(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 3, 2, -1, -2, 5})
	p := Softmax(m)
	for i := 0; i < 2; i++ {
		if s := mat.Sum(p.RowView(i)); math.Abs(s-1) > 1e-12 {
			t.Fatalf("row %d sums to %v", i, s)
		}
	}
	idx := ArgMax(p)
	if idx[0] != 1 || idx[1] != 2 {
		t.Fatalf("unexpected argmax %v", idx)
	}
}
