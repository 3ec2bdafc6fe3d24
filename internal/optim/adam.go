package optim

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"melody-forge/internal/graph"
)

// Adam implements the Adam update with bias correction folded into the
// step size:
//
//	m = β1·m + (1-β1)·g
//	v = β2·v + (1-β2)·g²
//	θ -= lr·sqrt(1-β2^t)/(1-β1^t) · m/(sqrt(v)+ε)
//
// Slot state is kept per parameter node, so one Adam can serve every graph
// that shares the same parameters.
type Adam struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64

	t     int
	slots map[*graph.Node]*slot
}

type slot struct {
	m, v *mat.Dense
}

// NewAdam returns Adam with the usual defaults.
func NewAdam() *Adam {
	return &Adam{
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
		slots:   make(map[*graph.Node]*slot),
	}
}

// Steps returns how many updates have been applied.
func (a *Adam) Steps() int { return a.t }

// Step updates params from their gradients, then zeroes the gradients.
// It returns the global L2 norm of the gradients it consumed.
func (a *Adam) Step(params []*graph.Node, lr float64) float64 {
	a.t++
	t := float64(a.t)
	stepSize := lr * math.Sqrt(1-math.Pow(a.Beta2, t)) / (1 - math.Pow(a.Beta1, t))

	sumSq := 0.0
	for _, p := range params {
		if !p.HasGrad() {
			continue
		}
		s := a.slotFor(p)
		r, _ := p.Dims()
		grad := p.Grad()
		for i := 0; i < r; i++ {
			w, gr := p.Value.RawRowView(i), grad.RawRowView(i)
			m, v := s.m.RawRowView(i), s.v.RawRowView(i)
			for j, g := range gr {
				sumSq += g * g
				m[j] = a.Beta1*m[j] + (1-a.Beta1)*g
				v[j] = a.Beta2*v[j] + (1-a.Beta2)*g*g
				w[j] -= stepSize * m[j] / (math.Sqrt(v[j]) + a.Epsilon)
			}
		}
		p.ZeroGrad()
	}
	return math.Sqrt(sumSq)
}

func (a *Adam) slotFor(p *graph.Node) *slot {
	if a.slots == nil {
		a.slots = make(map[*graph.Node]*slot)
	}
	s, ok := a.slots[p]
	if !ok {
		r, c := p.Dims()
		s = &slot{m: mat.NewDense(r, c, nil), v: mat.NewDense(r, c, nil)}
		a.slots[p] = s
	}
	return s
}
