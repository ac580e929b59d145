package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Server.Address = %q, want :8080", cfg.Server.Address)
	}
	if cfg.Detector.NumTrees != 100 || cfg.Detector.SubsampleSize != 256 {
		t.Errorf("detector defaults = %d/%d, want 100/256",
			cfg.Detector.NumTrees, cfg.Detector.SubsampleSize)
	}
	if cfg.Healing.CooldownMinutes != 5 {
		t.Errorf("CooldownMinutes = %v, want 5", cfg.Healing.CooldownMinutes)
	}
	if cfg.Healing.Thresholds.CPUCritical != 90 ||
		cfg.Healing.Thresholds.MemoryCritical != 85 ||
		cfg.Healing.Thresholds.ResponseTimeCriticalMs != 5000 {
		t.Errorf("threshold defaults wrong: %+v", cfg.Healing.Thresholds)
	}
	if !cfg.Healing.AutoRestart || cfg.Healing.MaxRestartAttempts != 3 {
		t.Errorf("restart defaults wrong: %+v", cfg.Healing)
	}
	if cfg.Monitor.Interval != 5*time.Second {
		t.Errorf("Monitor.Interval = %v, want 5s", cfg.Monitor.Interval)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("Store.Backend = %q, want file", cfg.Store.Backend)
	}
	if cfg.Events.Enabled {
		t.Error("events should be disabled by default")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heal.yaml")
	body := `
server:
  address: ":9090"
detector:
  contamination: 0.05
  minTrainingSamples: 80
healing:
  cooldownMinutes: 10
  thresholds:
    cpuCritical: 95
monitor:
  interval: 2s
store:
  backend: sqlite
  path: /tmp/heal.db
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if cfg.Detector.Contamination != 0.05 || cfg.Detector.MinTrainingSamples != 80 {
		t.Errorf("detector overrides not applied: %+v", cfg.Detector)
	}
	if cfg.Healing.CooldownMinutes != 10 {
		t.Errorf("CooldownMinutes = %v", cfg.Healing.CooldownMinutes)
	}
	if cfg.Healing.Thresholds.CPUCritical != 95 {
		t.Errorf("CPUCritical = %v", cfg.Healing.Thresholds.CPUCritical)
	}
	if cfg.Monitor.Interval != 2*time.Second {
		t.Errorf("Monitor.Interval = %v", cfg.Monitor.Interval)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/tmp/heal.db" {
		t.Errorf("store overrides not applied: %+v", cfg.Store)
	}
	// Untouched keys keep their defaults.
	if cfg.Healing.Thresholds.MemoryCritical != 85 {
		t.Errorf("MemoryCritical = %v, want default 85", cfg.Healing.Thresholds.MemoryCritical)
	}
}

func TestFractionalCooldownMinutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heal.yaml")
	body := `
healing:
  cooldownMinutes: 2.5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Healing.CooldownMinutes != 2.5 {
		t.Errorf("CooldownMinutes = %v, want 2.5", cfg.Healing.CooldownMinutes)
	}
	if cfg.Healing.CooldownDuration() != 150*time.Second {
		t.Errorf("CooldownDuration = %v, want 2m30s", cfg.Healing.CooldownDuration())
	}

	t.Setenv("NEUROCLOUD_HEAL_COOLDOWN_MINUTES", "0.5")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load with env: %v", err)
	}
	if cfg.Healing.CooldownDuration() != 30*time.Second {
		t.Errorf("env CooldownDuration = %v, want 30s", cfg.Healing.CooldownDuration())
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NEUROCLOUD_HEAL_SERVER_ADDRESS", ":7070")
	t.Setenv("NEUROCLOUD_HEAL_LOG_FORMAT", "json")
	t.Setenv("NEUROCLOUD_HEAL_COOLDOWN_MINUTES", "2")
	t.Setenv("NEUROCLOUD_HEAL_STORE_BACKEND", "MEMORY")
	t.Setenv("NEUROCLOUD_HEAL_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if !cfg.Logging.JSON {
		t.Error("JSON logging not enabled")
	}
	if cfg.Healing.CooldownMinutes != 2 {
		t.Errorf("CooldownMinutes = %v", cfg.Healing.CooldownMinutes)
	}
	if cfg.Healing.CooldownDuration() != 2*time.Minute {
		t.Errorf("CooldownDuration = %v", cfg.Healing.CooldownDuration())
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want lowercased memory", cfg.Store.Backend)
	}
	if !cfg.Events.Enabled || len(cfg.Events.Brokers) != 2 {
		t.Errorf("kafka env override not applied: %+v", cfg.Events)
	}
}
