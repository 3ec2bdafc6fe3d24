package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"melody-forge/internal/model"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	TrainRoots   []string `yaml:"train_roots"`
	ValidRoot    string   `yaml:"valid_root"`
	Steps        int      `yaml:"steps"`
	SeqLen       int      `yaml:"seq_len"`
	NumWorkers   int      `yaml:"num_workers"`
	Seed         int64    `yaml:"seed"`
	LogEvery     int      `yaml:"log_every"`
	ValidEvery   int      `yaml:"valid_every"`
	ValidBatches int      `yaml:"valid_batches"`
	LearningRate float64  `yaml:"learning_rate"`
	LogLevel     string   `yaml:"log_level"`
	LogFormat    string   `yaml:"log_format"`

	Model    ModelConfig    `yaml:"model"`
	Generate GenerateConfig `yaml:"generate"`
}

// ModelConfig mirrors model.Config.
type ModelConfig struct {
	RNNHiddenSize int `yaml:"rnn_hidden_size"`
	NumLayers     int `yaml:"num_layers"`
	BatchSize     int `yaml:"batch_size"`
	NoteDictSize  int `yaml:"note_dict_size"`
	InputDim      int `yaml:"input_dim"`
}

// GenerateConfig controls the melody sampled after training. Length 0
// disables generation.
type GenerateConfig struct {
	Length      int     `yaml:"length"`
	Temperature float64 `yaml:"temperature"`
	Primer      []int   `yaml:"primer"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	TrainRoots   []string
	ValidRoot    string
	Steps        int
	BatchSize    int
	NumWorkers   int
	Seed         int64
	LogEvery     int
	LearningRate float64
	LogLevel     string
	GenLength    int
}

// Load reads and validates a Config from YAML.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML, rejecting unknown keys.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if len(o.TrainRoots) > 0 {
		c.TrainRoots = o.TrainRoots
	}
	if o.ValidRoot != "" {
		c.ValidRoot = o.ValidRoot
	}
	if o.Steps > 0 {
		c.Steps = o.Steps
	}
	if o.BatchSize > 0 {
		c.Model.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.GenLength > 0 {
		c.Generate.Length = o.GenLength
	}
}

// Validate verifies the config is runnable and fills defaults.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if len(c.TrainRoots) == 0 {
		return errors.New("at least one training root must be set")
	}
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be > 0 (got %d)", c.Steps)
	}
	if c.SeqLen <= 0 {
		return fmt.Errorf("seq_len must be > 0 (got %d)", c.SeqLen)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be > 0 (got %d)", c.NumWorkers)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.Generate.Length < 0 || c.Generate.Temperature < 0 {
		return errors.New("generate length and temperature must be >= 0")
	}
	if c.Model.InputDim == 0 {
		c.Model.InputDim = 1
	}
	if err := c.ModelConfig().Validate(); err != nil {
		return err
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	if c.ValidRoot != "" && c.ValidEvery <= 0 {
		c.ValidEvery = c.LogEvery
	}
	return nil
}

// ModelConfig projects the model section onto the builder's config record.
func (c *Config) ModelConfig() model.Config {
	return model.Config{
		RNNHiddenSize: c.Model.RNNHiddenSize,
		NumLayers:     c.Model.NumLayers,
		BatchSize:     c.Model.BatchSize,
		NoteDictSize:  c.Model.NoteDictSize,
		InputDim:      c.Model.InputDim,
	}
}
