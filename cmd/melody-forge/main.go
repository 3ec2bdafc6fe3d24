package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"melody-forge/internal/config"
	"melody-forge/internal/dataset"
	"melody-forge/internal/generate"
	"melody-forge/internal/logging"
	"melody-forge/internal/model"
	"melody-forge/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "configs/demo.yaml", "Path to YAML config")
	trainRoots := flag.String("train-roots", "", "Comma separated training roots")
	validRoot := flag.String("valid-root", "", "Override validation root")
	steps := flag.Int("steps", 0, "Number of training steps")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	numWorkers := flag.Int("num-workers", 0, "Number of shard reader workers")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N steps")
	learningRate := flag.Float64("learning-rate", 0, "Adam learning rate")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	genLength := flag.Int("generate", 0, "Notes to sample after training")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var roots []string
	if *trainRoots != "" {
		roots = strings.Split(*trainRoots, ",")
	}
	cfg.ApplyOverrides(config.Overrides{
		TrainRoots:   roots,
		ValidRoot:    *validRoot,
		Steps:        *steps,
		BatchSize:    *batchSize,
		NumWorkers:   *numWorkers,
		Seed:         *seed,
		LogEvery:     *logEvery,
		LearningRate: *learningRate,
		LogLevel:     *logLevel,
		GenLength:    *genLength,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("invalid logging config: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("run failed")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	train, err := dataset.DiscoverByRoot(cfg.TrainRoots)
	if err != nil {
		return err
	}
	for root, shards := range train {
		logger.WithFields(logrus.Fields{"root": root, "shards": len(shards)}).Info("discovered training shards")
	}
	var valid map[string][]string
	if cfg.ValidRoot != "" {
		if valid, err = dataset.DiscoverByRoot([]string{cfg.ValidRoot}); err != nil {
			return err
		}
	}

	net, err := model.NewNetwork(cfg.ModelConfig(), cfg.LearningRate, cfg.Seed)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := trainer.RunConfig{
		TrainRoots:   train,
		ValidRoots:   valid,
		Model:        cfg.ModelConfig(),
		SeqLen:       cfg.SeqLen,
		Steps:        cfg.Steps,
		NumWorkers:   cfg.NumWorkers,
		LogEvery:     cfg.LogEvery,
		ValidEvery:   cfg.ValidEvery,
		ValidBatches: cfg.ValidBatches,
		Seed:         cfg.Seed,
	}
	if err := trainer.Run(ctx, runCfg, net, logger); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	if cfg.Generate.Length == 0 {
		return nil
	}
	melody, err := generate.Melody(net, generate.Options{
		Length:      cfg.Generate.Length,
		Temperature: cfg.Generate.Temperature,
		Seed:        cfg.Seed,
		Primer:      cfg.Generate.Primer,
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	logger.WithField("notes", len(melody)).Info("generated melody")
	fmt.Println(strings.Trim(fmt.Sprint(melody), "[]"))
	return nil
}
