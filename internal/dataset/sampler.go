package dataset

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
)

// SamplerOptions configures the multi-root sampler.
type SamplerOptions struct {
	Roots      map[string][]string
	Seed       int64
	NumWorkers int
	PendingCap int
	// Epochs bounds how many passes are made over the shards. Zero streams
	// forever; otherwise the sample channel closes after the last pass.
	Epochs int
}

// StartSampler streams samples from every shard of every root. Shards are
// read by NumWorkers goroutines in parallel but emitted in a fixed order,
// so the stream depends only on the seed.
func StartSampler(parent context.Context, opts SamplerOptions) (<-chan Sample, <-chan error, error) {
	if len(opts.Roots) == 0 {
		return nil, nil, errors.New("sampler: no dataset roots provided")
	}
	total := 0
	for _, shards := range opts.Roots {
		total += len(shards)
	}
	if total == 0 {
		return nil, nil, errors.New("sampler: no shards discovered")
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.PendingCap <= 0 {
		opts.PendingCap = defaultPendingCap
	}
	if opts.Seed == 0 {
		opts.Seed = 42
	}

	ctx, cancel := context.WithCancel(parent)

	tasks := make(chan shardTask, opts.NumWorkers)
	streams := make(chan shardStream, opts.NumWorkers)
	out := make(chan Sample, opts.NumWorkers*2)
	errCh := make(chan error, opts.NumWorkers)

	go scheduleShards(ctx, tasks, opts.Roots, opts.Epochs, rand.New(rand.NewSource(opts.Seed)))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			openShards(ctx, tasks, streams, opts.PendingCap)
		}()
	}
	go func() {
		wg.Wait()
		close(streams)
	}()

	go func() {
		defer cancel()
		defer close(out)
		defer close(errCh)
		if err := mergeInOrder(ctx, streams, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh, nil
}

type shardTask struct {
	seq  int64
	path string
}

type shardStream struct {
	seq     int64
	samples <-chan Sample
	errCh   <-chan error
}

func openShards(ctx context.Context, tasks <-chan shardTask, streams chan<- shardStream, pendingCap int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			samples, errCh := StreamShard(ctx, task.path, pendingCap)
			select {
			case <-ctx.Done():
				return
			case streams <- shardStream{seq: task.seq, samples: samples, errCh: errCh}:
			}
		}
	}
}

// mergeInOrder forwards shard streams strictly by sequence number, parking
// streams that arrive early.
func mergeInOrder(ctx context.Context, streams <-chan shardStream, out chan<- Sample) error {
	parked := make(map[int64]shardStream)
	var next int64
	open := true
	for {
		stream, ok := parked[next]
		if !ok {
			if !open {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case s, more := <-streams:
				if !more {
					open = false
					continue
				}
				parked[s.seq] = s
			}
			continue
		}

		for sample := range stream.samples {
			select {
			case <-ctx.Done():
				return nil
			case out <- sample:
			}
		}
		if err := <-stream.errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		delete(parked, next)
		next++
	}
}

func scheduleShards(ctx context.Context, tasks chan<- shardTask, roots map[string][]string, epochs int, rng *rand.Rand) {
	defer close(tasks)
	var seq int64
	for epoch := 0; epochs <= 0 || epoch < epochs; epoch++ {
		for _, path := range interleaveRoots(roots, rng) {
			select {
			case <-ctx.Done():
				return
			case tasks <- shardTask{seq: seq, path: path}:
				seq++
			}
		}
	}
}

// interleaveRoots shuffles each root's shards and then takes one shard
// per root in turn, so no root dominates a stretch of the stream.
func interleaveRoots(roots map[string][]string, rng *rand.Rand) []string {
	names := make([]string, 0, len(roots))
	for root := range roots {
		names = append(names, root)
	}
	sort.Strings(names)

	queues := make([][]string, len(names))
	longest := 0
	for i, root := range names {
		q := append([]string(nil), roots[root]...)
		if rng != nil {
			rng.Shuffle(len(q), func(a, b int) { q[a], q[b] = q[b], q[a] })
		}
		queues[i] = q
		if len(q) > longest {
			longest = len(q)
		}
	}

	var order []string
	for i := 0; i < longest; i++ {
		for _, q := range queues {
			if i < len(q) {
				order = append(order, q[i])
			}
		}
	}
	return order
}
