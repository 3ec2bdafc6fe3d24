package metrics

import (
	"math"
	"testing"
	"time"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(64, 20*time.Millisecond, 10*time.Millisecond, 1.2)
	w.Record(64, 10*time.Millisecond, 20*time.Millisecond, 0.8)
	snap := w.Snapshot()
	if math.Abs(snap.SequencesPerSec-2133.3333) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.SequencesPerSec)
	}
	if w.sequences != 0 || w.steps != 0 {
		t.Fatalf("window was not reset")
	}
	if snap.LastLoss != 0.8 {
		t.Fatalf("expected last loss 0.8, got %.2f", snap.LastLoss)
	}
	if math.Abs(snap.AvgLoss-1.0) > 1e-12 {
		t.Fatalf("expected average loss 1.0, got %.4f", snap.AvgLoss)
	}
}

func TestAccuracySkipsIgnored(t *testing.T) {
	acc := Accuracy{Ignore: 9}
	acc.Record(
		[][]int{{1, 2, 3}, {4, 5, 6}},
		[][]int{{1, 0, 9}, {4, 9, 6}},
	)
	if acc.Total() != 4 {
		t.Fatalf("expected 4 scored positions, got %d", acc.Total())
	}
	if got := acc.Value(); math.Abs(got-0.75) > 1e-12 {
		t.Fatalf("expected accuracy 0.75, got %f", got)
	}
	var empty Accuracy
	if empty.Value() != 0 {
		t.Fatalf("expected 0 for empty accuracy")
	}
}
