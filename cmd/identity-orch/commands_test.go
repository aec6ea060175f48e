package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/identity-orchestrator/internal/config"
	"github.com/hochfrequenz/identity-orchestrator/internal/domain"
)

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := initConfig(path, false); err != nil {
		t.Fatalf("initConfig() error = %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Run.BatchSize != config.Default().Run.BatchSize {
		t.Errorf("BatchSize = %d, want default", cfg.Run.BatchSize)
	}

	if err := initConfig(path, false); err == nil {
		t.Error("second init without force should fail")
	}
	if err := initConfig(path, true); err != nil {
		t.Errorf("init with force error = %v", err)
	}
}

func TestShowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.SlackWebhook = "https://hooks.slack.com/services/T000/B000/XXXX"
	cfg.Run.TargetURL = ""

	var buf bytes.Buffer
	if err := showConfig(&buf, cfg); err != nil {
		t.Fatalf("showConfig() error = %v", err)
	}
	out := buf.String()

	if strings.Contains(out, "hooks.slack.com") {
		t.Error("webhook should be masked")
	}
	if !strings.Contains(out, "batch_size") {
		t.Errorf("output missing batch_size:\n%s", out)
	}
	if !strings.Contains(out, "# not runnable yet") {
		t.Error("invalid config should be flagged")
	}
	if cfg.Notifications.SlackWebhook == "***" {
		t.Error("showConfig must not modify its argument")
	}
}

func TestPrintIdentities(t *testing.T) {
	var buf bytes.Buffer
	printIdentities(&buf, nil)
	if !strings.Contains(buf.String(), "No identities") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	printIdentities(&buf, []domain.Identity{
		{Name: "profile_a", Username: "alice", Status: domain.StatusClosed, TwoFASeed: "SEED", Result: "Success"},
		{Name: "profile_b", Username: "bob", Status: domain.StatusClosed},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "yes") || !strings.Contains(lines[1], "Success") {
		t.Errorf("row a = %q", lines[1])
	}
	if strings.Contains(lines[2], "SEED") {
		t.Error("seed must never be printed")
	}
}

func TestPrintRunResult(t *testing.T) {
	finished := time.Now()
	result := domain.RunResult{
		RunID:      "run-1",
		Requested:  5,
		Total:      3,
		Successful: 2,
		Batches:    2,
		Stopped:    true,
		Outcomes: map[string]domain.Outcome{
			"profile_a": domain.OutcomeSuccess,
			"profile_b": domain.ErrorOutcome("wrong password"),
			"profile_c": domain.OutcomeSuccess,
		},
		FinishedAt: &finished,
	}

	var buf bytes.Buffer
	printRunResult(&buf, result)
	out := buf.String()

	for _, want := range []string{
		"Run run-1: 2/3 identities succeeded in 2 batches",
		"2 identities not started",
		"profile_b: Error: wrong password",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "profile_a") {
		t.Error("successful identities should not be listed")
	}
}

func TestLoadConfig_EnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[run]\nbatch_size = 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("IDORCH_TARGET_URL=https://example.com/status/1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	old := configPath
	configPath = path
	t.Cleanup(func() { configPath = old })

	cfg, files, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if files.Path != path {
		t.Errorf("Path = %s, want %s", files.Path, path)
	}
	if cfg.Run.BatchSize != 4 {
		t.Errorf("BatchSize = %d, want 4", cfg.Run.BatchSize)
	}
	if cfg.Run.TargetURL != "https://example.com/status/1" {
		t.Errorf("TargetURL = %q", cfg.Run.TargetURL)
	}
}
