package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/config"
)

func TestNewManagerCreatesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	m, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be created at %s: %v", path, err)
	}

	cfg := m.Get()
	if cfg.Screencopy.MaxFPS != 0 {
		t.Errorf("MaxFPS = %d, want 0", cfg.Screencopy.MaxFPS)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestManagerLoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "screencopy:\n  max_fps: 60\n  allow_token_by_default: true\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to seed config file: %v", err)
	}

	m, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Screencopy.MaxFPS != 60 {
		t.Errorf("MaxFPS = %d, want 60", cfg.Screencopy.MaxFPS)
	}
	if !cfg.Screencopy.AllowTokenByDefault {
		t.Error("AllowTokenByDefault = false, want true")
	}
}

func TestApplyOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	m, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}

	m.ApplyOverrides("debug", ":9090")

	cfg := m.Get()
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Debug.HTTPAddr != ":9090" {
		t.Errorf("Debug.HTTPAddr = %q, want %q", cfg.Debug.HTTPAddr, ":9090")
	}
}
