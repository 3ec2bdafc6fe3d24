package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSONCarriesFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewWithOutput(buf, "debug", "json")
	if err != nil {
		t.Fatalf("NewWithOutput: %v", err)
	}
	logger.WithField("step", 3).Debug("train")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["msg"] != "train" || entry["step"] != float64(3) {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewRejectsBadSettings(t *testing.T) {
	if _, err := New("loud", "text"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	logger, err := New("", "")
	if err != nil {
		t.Fatalf("New defaults: %v", err)
	}
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %v", logger.GetLevel())
	}
}
