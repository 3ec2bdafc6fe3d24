package model

import "fmt"

// IDs is an integer tensor of shape Batch x Steps x Codes, stored
// row-major. Codes is 1 for one-ID-per-step sequences.
type IDs struct {
	Batch int
	Steps int
	Codes int
	Data  []int
}

// NewIDs allocates a zero tensor.
func NewIDs(batch, steps, codes int) IDs {
	return IDs{Batch: batch, Steps: steps, Codes: codes, Data: make([]int, batch*steps*codes)}
}

// At returns the code k of step t in sequence b.
func (x IDs) At(b, t, k int) int { return x.Data[x.index(b, t, k)] }

// Set stores v at (b, t, k).
func (x IDs) Set(b, t, k, v int) { x.Data[x.index(b, t, k)] = v }

func (x IDs) index(b, t, k int) int {
	return (b*x.Steps+t)*x.Codes + k
}

// Shape returns [Batch, Steps] for single-code tensors and
// [Batch, Steps, Codes] otherwise.
func (x IDs) Shape() []int {
	if x.Codes == 1 {
		return []int{x.Batch, x.Steps}
	}
	return []int{x.Batch, x.Steps, x.Codes}
}

// check verifies the tensor is batch x steps x codes and every ID indexes
// a padded vocabulary of size classes.
func (x IDs) check(name string, batch, codes, classes int) error {
	if x.Batch != batch {
		return fmt.Errorf("%w: %s batch %d, config batch %d", ErrShape, name, x.Batch, batch)
	}
	if x.Steps <= 0 {
		return fmt.Errorf("%w: %s has %d steps", ErrShape, name, x.Steps)
	}
	if x.Codes != codes {
		return fmt.Errorf("%w: %s has %d codes per step, want %d", ErrShape, name, x.Codes, codes)
	}
	if len(x.Data) != x.Batch*x.Steps*x.Codes {
		return fmt.Errorf("%w: %s holds %d ids for shape %v", ErrShape, name, len(x.Data), x.Shape())
	}
	for i, id := range x.Data {
		if id < 0 || id >= classes {
			return fmt.Errorf("%w: %s[%d]=%d not in [0,%d]", ErrVocabRange, name, i, id, classes-1)
		}
	}
	return nil
}
