package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `
train_roots: [/data/a, /data/b]
valid_root: /data/valid
steps: 100
seq_len: 32
num_workers: 2
learning_rate: 0.002
model:
  rnn_hidden_size: 128
  num_layers: 2
  batch_size: 16
  note_dict_size: 88
generate:
  length: 64
  temperature: 0.8
  primer: [60, 62]
`

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.TrainRoots) != 2 || cfg.TrainRoots[1] != "/data/b" {
		t.Fatalf("train roots %v", cfg.TrainRoots)
	}
	if cfg.LogEvery != 50 || cfg.ValidEvery != 50 {
		t.Fatalf("expected log/valid defaults of 50, got %d/%d", cfg.LogEvery, cfg.ValidEvery)
	}
	m := cfg.ModelConfig()
	if m.InputDim != 1 || m.NoteDictSize != 88 || m.BatchSize != 16 {
		t.Fatalf("unexpected model config %+v", m)
	}
	if cfg.Generate.Length != 64 || len(cfg.Generate.Primer) != 2 {
		t.Fatalf("unexpected generate config %+v", cfg.Generate)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse(strings.NewReader("steps: 3\nbogus: 1\n")); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]func(*Config){
		"no roots":      func(c *Config) { c.TrainRoots = nil },
		"no steps":      func(c *Config) { c.Steps = 0 },
		"no seq len":    func(c *Config) { c.SeqLen = 0 },
		"no workers":    func(c *Config) { c.NumWorkers = 0 },
		"no rate":       func(c *Config) { c.LearningRate = 0 },
		"no hidden":     func(c *Config) { c.Model.RNNHiddenSize = 0 },
		"negative temp": func(c *Config) { c.Generate.Temperature = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse(strings.NewReader(sample))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.ApplyOverrides(Overrides{TrainRoots: []string{"/x"}, BatchSize: 4, LearningRate: 0.1, GenLength: 5})
	if len(cfg.TrainRoots) != 1 || cfg.Model.BatchSize != 4 || cfg.LearningRate != 0.1 || cfg.Generate.Length != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Steps != 100 {
		t.Fatalf("zero override changed steps to %d", cfg.Steps)
	}
}
