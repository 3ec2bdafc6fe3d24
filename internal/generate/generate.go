// Package generate samples melodies from a trained network.
package generate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"melody-forge/internal/model"
	"melody-forge/internal/rnn"
)

// Predictor is the inference surface generation needs.
type Predictor interface {
	Config() model.Config
	Predict(input model.IDs, state rnn.State) (*mat.Dense, rnn.State, error)
}

// Options controls sampling.
type Options struct {
	Length int
	// Temperature flattens (>1) or sharpens (<1) the distribution. Zero
	// picks the most likely note every step.
	Temperature float64
	Seed        int64
	// Primer is fed before sampling starts. Empty means one random note.
	Primer []int
}

// Melody returns Length sampled notes following the primer. Each step runs
// a one-step inference graph that starts from the previous step's state.
func Melody(p Predictor, opts Options) ([]int, error) {
	if opts.Length <= 0 {
		return nil, errors.New("generate: length must be > 0")
	}
	if opts.Temperature < 0 {
		return nil, fmt.Errorf("generate: temperature must be >= 0 (got %g)", opts.Temperature)
	}
	cfg := p.Config()
	rng := rand.New(rand.NewSource(opts.Seed))

	primer := opts.Primer
	if len(primer) == 0 {
		primer = []int{rng.Intn(cfg.NoteDictSize)}
	}
	for _, note := range primer {
		if note < 0 || note >= cfg.NoteDictSize {
			return nil, fmt.Errorf("generate: primer note %d outside [0,%d)", note, cfg.NoteDictSize)
		}
	}

	probs, state, err := p.Predict(stepInput(cfg, primer...), nil)
	if err != nil {
		return nil, err
	}
	rows, _ := probs.Dims()
	row := mat.Row(nil, rows-1, probs)

	melody := make([]int, 0, opts.Length)
	for {
		note := sample(row, cfg.PadID(), opts.Temperature, rng)
		melody = append(melody, note)
		if len(melody) == opts.Length {
			return melody, nil
		}
		if probs, state, err = p.Predict(stepInput(cfg, note), state); err != nil {
			return nil, err
		}
		row = mat.Row(row, 0, probs)
	}
}

// stepInput lays notes out as a batch of one, one note per step, with the
// remaining codes of each step set to the pad ID.
func stepInput(cfg model.Config, notes ...int) model.IDs {
	codes := cfg.Codes()
	ids := model.NewIDs(1, len(notes), codes)
	for t, note := range notes {
		ids.Set(0, t, 0, note)
		for k := 1; k < codes; k++ {
			ids.Set(0, t, k, cfg.PadID())
		}
	}
	return ids
}

// sample draws an index from probs, never returning skip.
func sample(probs []float64, skip int, temperature float64, rng *rand.Rand) int {
	weights := make([]float64, len(probs))
	for i, p := range probs {
		if i == skip || p <= 0 {
			continue
		}
		if temperature == 0 {
			weights[i] = p
		} else {
			weights[i] = math.Exp(math.Log(p) / temperature)
		}
	}
	if temperature == 0 || floats.Sum(weights) == 0 {
		weights[skip] = math.Inf(-1)
		return floats.MaxIdx(weights)
	}

	floats.Scale(1/floats.Sum(weights), weights)
	r := rng.Float64()
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return 0
}
