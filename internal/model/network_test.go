package model

import "testing"

func TestNetworkTrainStepReducesLoss(t *testing.T) {
	cfg := testConfig(1)
	net, err := NewNetwork(cfg, 0.05, 1)
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	batch := Batch{Inputs: sequence(cfg, 4), Targets: constantTargets(cfg, 4, 3)}

	first, err := net.TrainStep(batch)
	if err != nil {
		t.Fatalf("TrainStep: %v", err)
	}
	var last float64
	for i := 0; i < 100; i++ {
		if last, err = net.TrainStep(batch); err != nil {
			t.Fatalf("TrainStep: %v", err)
		}
	}
	if last >= first {
		t.Fatalf("expected loss to decrease; first=%f last=%f", first, last)
	}

	pred, err := net.Validate(batch)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, row := range pred {
		for _, v := range row {
			if v != 3 {
				t.Fatalf("expected constant target 3 to be learned, got %v", pred)
			}
		}
	}
}

func TestNetworkPredictAnyBatchSize(t *testing.T) {
	cfg := testConfig(1)
	net, err := NewNetwork(cfg, 0.01, 2)
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	in := NewIDs(1, 2, 1)
	probs, state, err := net.Predict(in, nil)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if r, c := probs.Dims(); r != 2 || c != cfg.Classes() {
		t.Fatalf("probs dims %dx%d", r, c)
	}
	if _, _, err := net.Predict(in, state); err != nil {
		t.Fatalf("Predict with state: %v", err)
	}
	if _, err := NewNetwork(cfg, 0, 1); err == nil {
		t.Fatalf("expected error for zero learning rate")
	}
}
