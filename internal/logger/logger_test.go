package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formledger.log")
	if err := Setup(LogConfig{Level: "debug", Format: "JSON", Output: path}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	t.Cleanup(func() { _ = Setup(DefaultConfig()) })

	log := WithDocument("pipeline", "req-1", "page.png")
	log.Info().Msg("Tokens acquired")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", data)
	}
	for key, want := range map[string]string{
		"component":  "pipeline",
		"request_id": "req-1",
		"source":     "page.png",
		"message":    "Tokens acquired",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if err := Setup(LogConfig{Level: "loud"}); err == nil {
		t.Error("Setup() error = nil, want an error for an unknown level")
	}
}

func TestWithContext(t *testing.T) {
	if got := WithContext(context.Background()); got == nil {
		t.Fatal("WithContext() = nil without an attached logger")
	}

	attached := WithComponent("batch")
	ctx := attached.WithContext(context.Background())
	if got := WithContext(ctx); got.GetLevel() != attached.GetLevel() {
		t.Errorf("WithContext() level = %v, want %v", got.GetLevel(), attached.GetLevel())
	}
}
