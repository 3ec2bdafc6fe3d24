package graph

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MatMul returns a·b.
func (g *Graph) MatMul(a, b *Node) *Node {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		panic(fmt.Sprintf("graph: matmul %dx%d by %dx%d", ar, ac, br, bc))
	}
	out := newNode(ar, bc)
	out.Value.Mul(a.Value, b.Value)

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		var da, db mat.Dense
		da.Mul(out.grad, b.Value.T())
		a.Grad().Add(a.Grad(), &da)
		db.Mul(a.Value.T(), out.grad)
		b.Grad().Add(b.Grad(), &db)
	})
	return out
}

// AddBias adds the 1xC row b to every row of x.
func (g *Graph) AddBias(x, b *Node) *Node {
	r, c := x.Dims()
	if br, bc := b.Dims(); br != 1 || bc != c {
		panic(fmt.Sprintf("graph: bias %dx%d for %dx%d", br, bc, r, c))
	}
	out := newNode(r, c)
	bias := b.Value.RawRowView(0)
	out.Value.Apply(func(_, j int, v float64) float64 {
		return v + bias[j]
	}, x.Value)

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		x.Grad().Add(x.Grad(), out.grad)
		bg := b.Grad().RawRowView(0)
		for i := 0; i < r; i++ {
			floats.Add(bg, out.grad.RawRowView(i))
		}
	})
	return out
}

// Add returns a+b.
func (g *Graph) Add(a, b *Node) *Node {
	assertSameDims("add", a, b)
	out := newNode(a.Dims())
	out.Value.Add(a.Value, b.Value)

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		a.Grad().Add(a.Grad(), out.grad)
		b.Grad().Add(b.Grad(), out.grad)
	})
	return out
}

// Mul returns the element-wise product a⊙b.
func (g *Graph) Mul(a, b *Node) *Node {
	assertSameDims("mul", a, b)
	out := newNode(a.Dims())
	out.Value.MulElem(a.Value, b.Value)

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		var t mat.Dense
		t.MulElem(out.grad, b.Value)
		a.Grad().Add(a.Grad(), &t)
		t.MulElem(out.grad, a.Value)
		b.Grad().Add(b.Grad(), &t)
	})
	return out
}

// AddConst adds c to every element of x.
func (g *Graph) AddConst(x *Node, c float64) *Node {
	out := newNode(x.Dims())
	out.Value.Apply(func(_, _ int, v float64) float64 { return v + c }, x.Value)

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		x.Grad().Add(x.Grad(), out.grad)
	})
	return out
}

// Sigmoid applies 1/(1+e^-x) element-wise.
func (g *Graph) Sigmoid(x *Node) *Node {
	out := newNode(x.Dims())
	out.Value.Apply(func(_, _ int, v float64) float64 {
		return 1 / (1 + math.Exp(-v))
	}, x.Value)

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		xg := x.Grad()
		r, _ := x.Dims()
		for i := 0; i < r; i++ {
			y, gy, gx := out.Value.RawRowView(i), out.grad.RawRowView(i), xg.RawRowView(i)
			for j := range y {
				gx[j] += y[j] * (1 - y[j]) * gy[j]
			}
		}
	})
	return out
}

// Tanh applies tanh element-wise.
func (g *Graph) Tanh(x *Node) *Node {
	out := newNode(x.Dims())
	out.Value.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, x.Value)

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		xg := x.Grad()
		r, _ := x.Dims()
		for i := 0; i < r; i++ {
			y, gy, gx := out.Value.RawRowView(i), out.grad.RawRowView(i), xg.RawRowView(i)
			for j := range y {
				gx[j] += (1 - y[j]*y[j]) * gy[j]
			}
		}
	})
	return out
}

// Gather returns the rows of table selected by ids, in order. It is the
// embedding lookup, and also selects time steps out of a flattened batch.
func (g *Graph) Gather(table *Node, ids []int) *Node {
	rows, c := table.Dims()
	for _, id := range ids {
		if id < 0 || id >= rows {
			panic(fmt.Sprintf("graph: gather index %d out of [0,%d)", id, rows))
		}
	}
	out := newNode(len(ids), c)
	for i, id := range ids {
		copy(out.Value.RawRowView(i), table.Value.RawRowView(id))
	}

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		tg := table.Grad()
		for i, id := range ids {
			floats.Add(tg.RawRowView(id), out.grad.RawRowView(i))
		}
	})
	return out
}

// SumGroups sums every run of size consecutive rows, collapsing an inner
// axis that was flattened into the row dimension.
func (g *Graph) SumGroups(x *Node, size int) *Node {
	r, c := x.Dims()
	if size <= 0 || r%size != 0 {
		panic(fmt.Sprintf("graph: cannot group %d rows by %d", r, size))
	}
	out := newNode(r/size, c)
	for i := 0; i < r/size; i++ {
		dst := out.Value.RawRowView(i)
		for k := 0; k < size; k++ {
			floats.Add(dst, x.Value.RawRowView(i*size+k))
		}
	}

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		xg := x.Grad()
		for i := 0; i < r/size; i++ {
			src := out.grad.RawRowView(i)
			for k := 0; k < size; k++ {
				floats.Add(xg.RawRowView(i*size+k), src)
			}
		}
	})
	return out
}

// Concat joins a and b along the column axis.
func (g *Graph) Concat(a, b *Node) *Node {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br {
		panic(fmt.Sprintf("graph: concat %d rows with %d rows", ar, br))
	}
	out := newNode(ar, ac+bc)
	for i := 0; i < ar; i++ {
		row := out.Value.RawRowView(i)
		copy(row[:ac], a.Value.RawRowView(i))
		copy(row[ac:], b.Value.RawRowView(i))
	}

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		ag, bg := a.Grad(), b.Grad()
		for i := 0; i < ar; i++ {
			row := out.grad.RawRowView(i)
			floats.Add(ag.RawRowView(i), row[:ac])
			floats.Add(bg.RawRowView(i), row[ac:])
		}
	})
	return out
}

// SliceCols returns columns [from, to) of x.
func (g *Graph) SliceCols(x *Node, from, to int) *Node {
	r, c := x.Dims()
	if from < 0 || to > c || from >= to {
		panic(fmt.Sprintf("graph: slice [%d,%d) of %d columns", from, to, c))
	}
	out := newNode(r, to-from)
	for i := 0; i < r; i++ {
		copy(out.Value.RawRowView(i), x.Value.RawRowView(i)[from:to])
	}

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		xg := x.Grad()
		for i := 0; i < r; i++ {
			floats.Add(xg.RawRowView(i)[from:to], out.grad.RawRowView(i))
		}
	})
	return out
}

// Interleave turns T per-step nodes of shape BxC into one (B*T)xC node in
// batch-major order: row b*T+t holds row b of steps[t].
func (g *Graph) Interleave(steps []*Node) *Node {
	if len(steps) == 0 {
		panic("graph: interleave of no steps")
	}
	b, c := steps[0].Dims()
	for _, s := range steps[1:] {
		assertSameDims("interleave", steps[0], s)
	}
	n := len(steps)
	out := newNode(b*n, c)
	for t, s := range steps {
		for i := 0; i < b; i++ {
			copy(out.Value.RawRowView(i*n+t), s.Value.RawRowView(i))
		}
	}

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		for t, s := range steps {
			sg := s.Grad()
			for i := 0; i < b; i++ {
				floats.Add(sg.RawRowView(i), out.grad.RawRowView(i*n+t))
			}
		}
	})
	return out
}

// SoftmaxCrossEntropy returns the per-row loss -Σ labels·log softmax(logits)
// as an Nx1 node. labels has the same shape as logits.
func (g *Graph) SoftmaxCrossEntropy(logits *Node, labels *mat.Dense) *Node {
	r, c := logits.Dims()
	if lr, lc := labels.Dims(); lr != r || lc != c {
		panic(fmt.Sprintf("graph: labels %dx%d for logits %dx%d", lr, lc, r, c))
	}
	out := newNode(r, 1)
	probs := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		x, y, p := logits.Value.RawRowView(i), labels.RawRowView(i), probs.RawRowView(i)
		lse := floats.LogSumExp(x)
		loss := 0.0
		for j := range x {
			p[j] = math.Exp(x[j] - lse)
			loss -= y[j] * (x[j] - lse)
		}
		out.Value.Set(i, 0, loss)
	}

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		lg := logits.Grad()
		for i := 0; i < r; i++ {
			gy := out.grad.At(i, 0)
			y, p, gx := labels.RawRowView(i), probs.RawRowView(i), lg.RawRowView(i)
			mass := floats.Sum(y)
			for j := range gx {
				gx[j] += gy * (mass*p[j] - y[j])
			}
		}
	})
	return out
}

// Mean reduces x to the 1x1 mean of all elements.
func (g *Graph) Mean(x *Node) *Node {
	r, c := x.Dims()
	n := float64(r * c)
	out := newNode(1, 1)
	out.Value.Set(0, 0, mat.Sum(x.Value)/n)

	g.addBackprop(func() {
		if out.grad == nil {
			return
		}
		share := out.grad.At(0, 0) / n
		xg := x.Grad()
		for i := 0; i < r; i++ {
			floats.AddConst(share, xg.RawRowView(i))
		}
	})
	return out
}
