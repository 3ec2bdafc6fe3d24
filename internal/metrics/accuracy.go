package metrics

// Accuracy counts arg-max predictions that hit their target, skipping
// positions whose target is the ignored ID.
type Accuracy struct {
	Ignore  int
	correct int
	total   int
}

// Record compares a batch x time prediction with targets laid out the same
// way.
func (a *Accuracy) Record(pred [][]int, targets [][]int) {
	for b, row := range pred {
		for t, p := range row {
			want := targets[b][t]
			if want == a.Ignore {
				continue
			}
			a.total++
			if p == want {
				a.correct++
			}
		}
	}
}

// Total returns how many positions were scored.
func (a *Accuracy) Total() int { return a.total }

// Value returns the hit rate, or 0 when nothing was scored.
func (a *Accuracy) Value() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.correct) / float64(a.total)
}
