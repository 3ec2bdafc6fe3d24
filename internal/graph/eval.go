package graph

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Softmax returns the row-wise softmax of m. It records nothing on a tape.
func Softmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, m)
		lse := floats.LogSumExp(row)
		dst := out.RawRowView(i)
		for j, v := range row {
			dst[j] = math.Exp(v - lse)
		}
	}
	return out
}

// ArgMax returns the column index of the largest value in every row.
func ArgMax(m *mat.Dense) []int {
	r, _ := m.Dims()
	out := make([]int, r)
	for i := range out {
		out[i] = floats.MaxIdx(m.RawRowView(i))
	}
	return out
}

// OneHot encodes ids as rows of a len(ids) x depth matrix.
func OneHot(ids []int, depth int) *mat.Dense {
	out := mat.NewDense(len(ids), depth, nil)
	for i, id := range ids {
		if id < 0 || id >= depth {
			panic(fmt.Sprintf("graph: one-hot index %d out of [0,%d)", id, depth))
		}
		out.Set(i, id, 1)
	}
	return out
}
