package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"melody-forge/internal/dataset"
	"melody-forge/internal/metrics"
	"melody-forge/internal/model"
)

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	TrainRoots   map[string][]string
	ValidRoots   map[string][]string
	Model        model.Config
	SeqLen       int
	Steps        int
	NumWorkers   int
	LogEvery     int
	ValidEvery   int
	ValidBatches int
	Seed         int64
}

// Run executes the training workload against mdl.
func Run(ctx context.Context, cfg RunConfig, mdl model.Model, logger *logrus.Logger) error {
	if cfg.Steps <= 0 {
		return errors.New("trainer: steps must be > 0")
	}
	if cfg.SeqLen <= 0 {
		return errors.New("trainer: seq_len must be > 0")
	}
	if err := cfg.Model.Validate(); err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 50
	}
	if logger == nil {
		logger = logrus.New()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	samples, samplerErr, err := dataset.StartSampler(ctx, dataset.SamplerOptions{
		Roots:      cfg.TrainRoots,
		Seed:       cfg.Seed,
		NumWorkers: cfg.NumWorkers,
	})
	if err != nil {
		return err
	}

	var window metrics.Window
	for step := 1; step <= cfg.Steps; step++ {
		startData := time.Now()
		batch, err := nextBatch(ctx, samples, samplerErr, cfg)
		if err != nil {
			return err
		}
		dataTime := time.Since(startData)

		startCompute := time.Now()
		loss, err := mdl.TrainStep(batch)
		if err != nil {
			return fmt.Errorf("trainer: step %d: %w", step, err)
		}
		computeTime := time.Since(startCompute)

		window.Record(cfg.Model.BatchSize, dataTime, computeTime, loss)

		if step%cfg.LogEvery == 0 {
			snap := window.Snapshot()
			logger.WithFields(logrus.Fields{
				"step":        step,
				"seq_per_sec": fmt.Sprintf("%.1f", snap.SequencesPerSec),
				"data_ms":     fmt.Sprintf("%.2f", snap.AvgDataMS),
				"compute_ms":  fmt.Sprintf("%.2f", snap.AvgComputeMS),
				"loss":        fmt.Sprintf("%.4f", snap.LastLoss),
				"avg_loss":    fmt.Sprintf("%.4f", snap.AvgLoss),
			}).Info("train")
		}

		if len(cfg.ValidRoots) > 0 && cfg.ValidEvery > 0 && step%cfg.ValidEvery == 0 {
			acc, err := validate(ctx, cfg, mdl)
			if err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{
				"step":      step,
				"accuracy":  fmt.Sprintf("%.4f", acc.Value()),
				"positions": acc.Total(),
			}).Info("validate")
		}
	}

	return nil
}

// validate runs one pass over the validation roots, capped at ValidBatches
// batches when that is positive.
func validate(parent context.Context, cfg RunConfig, mdl model.Model) (metrics.Accuracy, error) {
	acc := metrics.Accuracy{Ignore: cfg.Model.PadID()}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	samples, errs, err := dataset.StartSampler(ctx, dataset.SamplerOptions{
		Roots:      cfg.ValidRoots,
		Seed:       cfg.Seed,
		NumWorkers: cfg.NumWorkers,
		Epochs:     1,
	})
	if err != nil {
		return acc, fmt.Errorf("trainer: validation: %w", err)
	}

	for n := 0; cfg.ValidBatches <= 0 || n < cfg.ValidBatches; n++ {
		batch, err := nextBatch(ctx, samples, errs, cfg)
		if errors.Is(err, errSamplerClosed) {
			break
		}
		if err != nil {
			return acc, fmt.Errorf("trainer: validation: %w", err)
		}
		pred, err := mdl.Validate(batch)
		if err != nil {
			return acc, fmt.Errorf("trainer: validation: %w", err)
		}
		acc.Record(pred, rows(batch.Targets))
	}
	return acc, nil
}

var errSamplerClosed = errors.New("sampler closed")

func nextBatch(ctx context.Context, samples <-chan dataset.Sample, errs <-chan error, cfg RunConfig) (model.Batch, error) {
	picked := make([]dataset.Sample, 0, cfg.Model.BatchSize)
	for len(picked) < cfg.Model.BatchSize {
		if err := ctx.Err(); err != nil {
			return model.Batch{}, err
		}
		select {
		case <-ctx.Done():
			return model.Batch{}, ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return model.Batch{}, err
			}
		case sample, ok := <-samples:
			if !ok {
				if err := ctx.Err(); err != nil {
					return model.Batch{}, err
				}
				// The sampler closes errs before samples, so this cannot block.
				if errs != nil {
					if err := <-errs; err != nil {
						return model.Batch{}, err
					}
				}
				return model.Batch{}, errSamplerClosed
			}
			if len(sample.Input) == 0 {
				continue
			}
			picked = append(picked, sample)
		}
	}
	return toBatch(picked, cfg.Model, cfg.SeqLen), nil
}

// toBatch packs samples into fixed-length tensors. Short sequences and
// missing codes are filled with the pad ID; notes outside the vocabulary
// become the pad ID as well.
func toBatch(samples []dataset.Sample, cfg model.Config, seqLen int) model.Batch {
	codes, pad := cfg.Codes(), cfg.PadID()
	inputs := model.NewIDs(len(samples), seqLen, codes)
	targets := model.NewIDs(len(samples), seqLen, 1)
	for i := range inputs.Data {
		inputs.Data[i] = pad
	}
	for i := range targets.Data {
		targets.Data[i] = pad
	}

	for b, s := range samples {
		for t := 0; t < seqLen && t < len(s.Input); t++ {
			for k, note := range s.Input[t] {
				if k == codes {
					break
				}
				inputs.Set(b, t, k, clampNote(note, cfg))
			}
			targets.Set(b, t, 0, clampNote(s.Target[t], cfg))
		}
	}
	return model.Batch{Inputs: inputs, Targets: targets}
}

func clampNote(note int, cfg model.Config) int {
	if note < 0 || note >= cfg.NoteDictSize {
		return cfg.PadID()
	}
	return note
}

func rows(ids model.IDs) [][]int {
	out := make([][]int, ids.Batch)
	for b := range out {
		out[b] = ids.Data[b*ids.Steps*ids.Codes : (b+1)*ids.Steps*ids.Codes]
	}
	return out
}
