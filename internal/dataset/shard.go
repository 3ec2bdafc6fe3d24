package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sample is one training sequence: the codes active at every step and the
// note expected after it.
type Sample struct {
	Key    string
	Input  [][]int
	Target []int
}

// ErrPendingOverflow indicates too many entries are waiting for their pair.
var ErrPendingOverflow = errors.New("dataset: pending pair buffer exceeded")

const defaultPendingCap = 1024

// StreamShard streams samples from the tar shard at path. A sample is the
// pair <key>.in and <key>.out; entries with other extensions are skipped.
func StreamShard(ctx context.Context, path string, pendingCap int) (<-chan Sample, <-chan error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		if err := readShard(ctx, path, pendingCap, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func readShard(ctx context.Context, path string, pendingCap int, out chan<- Sample) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open shard: %w", err)
	}
	defer f.Close()

	tr := tar.NewReader(bufio.NewReader(f))
	pending := make(map[string]*Sample)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar %s: %w", path, err)
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(hdr.Name)
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".in" && ext != ".out" {
			continue
		}
		key := strings.TrimSuffix(name, filepath.Ext(name))
		payload, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		s := pending[key]
		if s == nil {
			s = &Sample{Key: key}
			pending[key] = s
		}
		switch ext {
		case ".in":
			if s.Input, err = ParseSteps(string(payload)); err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
		case ".out":
			if s.Target, err = ParseNotes(string(payload)); err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
		}

		if len(pending) > pendingCap {
			return ErrPendingOverflow
		}
		if s.Input == nil || s.Target == nil {
			continue
		}
		if len(s.Input) != len(s.Target) {
			return fmt.Errorf("sample %s: %d input steps, %d targets", key, len(s.Input), len(s.Target))
		}
		delete(pending, key)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- *s:
		}
	}

	if len(pending) > 0 {
		return fmt.Errorf("%s: %d samples incomplete", path, len(pending))
	}
	return nil
}

// ParseSteps parses whitespace separated steps whose simultaneous codes are
// joined by '+', e.g. "60 60+64 67".
func ParseSteps(text string) ([][]int, error) {
	fields := strings.Fields(text)
	steps := make([][]int, 0, len(fields))
	for _, field := range fields {
		parts := strings.Split(field, "+")
		codes := make([]int, len(parts))
		for i, p := range parts {
			v, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", field, err)
			}
			codes[i] = v
		}
		steps = append(steps, codes)
	}
	return steps, nil
}

// ParseNotes parses whitespace separated note IDs.
func ParseNotes(text string) ([]int, error) {
	fields := strings.Fields(text)
	notes := make([]int, len(fields))
	for i, field := range fields {
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("note %q: %w", field, err)
		}
		notes[i] = v
	}
	return notes, nil
}
