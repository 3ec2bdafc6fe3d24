package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"melody-forge/internal/graph"
	"melody-forge/internal/optim"
	"melody-forge/internal/rnn"
)

// Params owns every trainable weight of the model and the optimizer slots.
// Passing the same Params to several builds makes them share weights: a
// train step is immediately visible to validate and infer graphs.
type Params struct {
	Embedding *graph.Node // (vocab+1) x hidden
	Weights   *graph.Node // hidden x (vocab+1)
	Bias      *graph.Node // 1 x (vocab+1)
	Cells     *rnn.MultiCell

	hiddenSize int
	numLayers  int
	classes    int
	adam       *optim.Adam
}

// NewParams initializes weights for cfg from seed.
func NewParams(cfg Config, seed int64) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	hidden, classes := cfg.RNNHiddenSize, cfg.Classes()

	emb := make([]float64, classes*hidden)
	for i := range emb {
		emb[i] = rng.Float64()*2 - 1
	}
	w := make([]float64, hidden*classes)
	for i := range w {
		w[i] = truncatedNormal(rng)
	}

	return &Params{
		Embedding:  graph.NewParam("embedding", mat.NewDense(classes, hidden, emb)),
		Cells:      rnn.NewMultiCell(cfg.NumLayers, hidden, hidden, rng),
		Weights:    graph.NewParam("weights", mat.NewDense(hidden, classes, w)),
		Bias:       graph.NewParam("bias", mat.NewDense(1, classes, nil)),
		hiddenSize: hidden,
		numLayers:  cfg.NumLayers,
		classes:    classes,
		adam:       optim.NewAdam(),
	}, nil
}

// truncatedNormal draws N(0,1) rejecting anything beyond two deviations.
func truncatedNormal(rng *rand.Rand) float64 {
	for {
		if v := rng.NormFloat64(); v >= -2 && v <= 2 {
			return v
		}
	}
}

// Trainable lists every parameter node.
func (p *Params) Trainable() []*graph.Node {
	out := []*graph.Node{p.Embedding}
	out = append(out, p.Cells.Params()...)
	return append(out, p.Weights, p.Bias)
}

// Optimizer returns the Adam instance whose slots track these weights.
func (p *Params) Optimizer() *optim.Adam { return p.adam }

func (p *Params) check(cfg Config) error {
	if cfg.RNNHiddenSize != p.hiddenSize || cfg.NumLayers != p.numLayers || cfg.Classes() != p.classes {
		return fmt.Errorf("%w: params are %d hidden x %d layers x %d classes, config wants %d x %d x %d",
			ErrParamsMismatch, p.hiddenSize, p.numLayers, p.classes,
			cfg.RNNHiddenSize, cfg.NumLayers, cfg.Classes())
	}
	return nil
}
