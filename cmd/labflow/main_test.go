package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/labflow-core/internal/instrument"
	"github.com/nerrad567/labflow-core/internal/sequence"
)

// testConfig renders a config file with external services disabled, so
// startup tests need no broker or InfluxDB instance.
func testConfig(t *testing.T, dbPath string) string {
	t.Helper()

	content := `
lab:
  id: test-lab
  name: "Test Lab"

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

engine:
  poll_interval: 100
  join_timeout: 60

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 18266
  timeouts:
    read: 30
    write: 60
    idle: 120

websocket:
  max_message_size: 8192
  ping_interval: 30
  pong_timeout: 10

security:
  jwt:
    secret: "test-secret-key-at-least-32-chars-long"
    access_token_ttl: 15
`
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("LABFLOW_CONFIG")
	defer os.Setenv("LABFLOW_CONFIG", originalEnv)

	os.Setenv("LABFLOW_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("LABFLOW_CONFIG")
	defer os.Setenv("LABFLOW_CONFIG", originalEnv)

	os.Unsetenv("LABFLOW_CONFIG")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("LABFLOW_CONFIG")
	defer os.Setenv("LABFLOW_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("LABFLOW_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestBuildBench verifies the simulated bench assembles cleanly.
func TestBuildBench(t *testing.T) {
	bench, err := buildBench()
	if err != nil {
		t.Fatalf("buildBench() error = %v", err)
	}
	if bench.Count() != 3 {
		t.Errorf("instrument count = %d, want 3", bench.Count())
	}

	for _, name := range []string{"source", "meter", "cryostat"} {
		if _, err := bench.Get(name); err != nil {
			t.Errorf("bench missing instrument %q: %v", name, err)
		}
	}
}

// TestPremadeSequences verifies the catalogue: unique names, at least
// one action each, and every referenced instrument present on the bench.
func TestPremadeSequences(t *testing.T) {
	bench, err := buildBench()
	if err != nil {
		t.Fatalf("buildBench() error = %v", err)
	}

	seen := make(map[string]bool)
	for _, seq := range premadeSequences() {
		if seq.Name == "" {
			t.Error("sequence with empty name")
		}
		if seen[seq.Name] {
			t.Errorf("duplicate sequence name %q", seq.Name)
		}
		seen[seq.Name] = true

		if seq.Root.CountActions() == 0 {
			t.Errorf("sequence %q declares no actions", seq.Name)
		}
		if seq.Description == "" {
			t.Errorf("sequence %q has no description", seq.Name)
		}
		checkInstruments(t, bench, seq.Name, seq.Root)
	}
}

// checkInstruments walks a spec tree verifying every leaf references a
// registered instrument operation.
func checkInstruments(t *testing.T, bench *instrument.Registry, seqName string, spec sequence.NodeSpec) {
	t.Helper()

	if spec.Kind == sequence.KindAction {
		if _, err := bench.Lookup(spec.Instrument, spec.Operation); err != nil {
			t.Errorf("sequence %q action %q: %v", seqName, spec.Name, err)
		}
	}
	if spec.Gate != nil {
		if _, err := bench.Lookup(spec.Gate.Source.Instrument, spec.Gate.Source.Operation); err != nil {
			t.Errorf("sequence %q gate on %q: %v", seqName, spec.Name, err)
		}
	}
	for _, child := range spec.Children {
		checkInstruments(t, bench, seqName, child)
	}
}

// TestRun_StartupAndShutdown exercises the full wiring with external
// services disabled, then shuts down via context timeout.
func TestRun_StartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	configPath := testConfig(t, dbPath)

	originalEnv := os.Getenv("LABFLOW_CONFIG")
	defer os.Setenv("LABFLOW_CONFIG", originalEnv)
	os.Setenv("LABFLOW_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	// Database should exist with migrations applied
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file was not created: %v", err)
	}
}
