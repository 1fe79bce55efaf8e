package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Collection != "COPERNICUS/S1_GRD" {
		t.Errorf("expected default collection, got %s", cfg.Collection)
	}
	if cfg.ChangeThresholdDB != 3.0 {
		t.Errorf("expected default threshold 3.0, got %f", cfg.ChangeThresholdDB)
	}
	if cfg.CheckIntervalHours != 6 {
		t.Errorf("expected default interval 6, got %d", cfg.CheckIntervalHours)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("missing file should fall back to defaults, got: %v", err)
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("polarization: VH\nspeckle_radius_px: 5\nchange_threshold_db: 2.5\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Polarization != "VH" {
		t.Errorf("expected polarization VH, got %s", cfg.Polarization)
	}
	if cfg.SpeckleRadiusPx != 5 {
		t.Errorf("expected radius 5, got %d", cfg.SpeckleRadiusPx)
	}
	if cfg.ChangeThresholdDB != 2.5 {
		t.Errorf("expected threshold 2.5, got %f", cfg.ChangeThresholdDB)
	}
	// Untouched keys keep their defaults.
	if cfg.InstrumentMode != "IW" {
		t.Errorf("expected instrument mode IW, got %s", cfg.InstrumentMode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHECK_INTERVAL_HOURS", "12")
	t.Setenv("CHANGE_THRESHOLD_DB", "4.5")
	t.Setenv("EE_PROJECT_ID", "test-project")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CheckIntervalHours != 12 {
		t.Errorf("expected interval 12, got %d", cfg.CheckIntervalHours)
	}
	if cfg.ChangeThresholdDB != 4.5 {
		t.Errorf("expected threshold 4.5, got %f", cfg.ChangeThresholdDB)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got: %v", err)
	}
}

func TestValidateRequiresProject(t *testing.T) {
	cfg := Default()
	cfg.EEProject = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when EE_PROJECT_ID is empty")
	}
}
