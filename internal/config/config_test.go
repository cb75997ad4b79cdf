package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RequiresWorkdirAndKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GOOGLE_LLM_API_KEY", "")
	t.Setenv("WORKDIR", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when no provider key and no WORKDIR is set")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("WORKDIR", dir)
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GOOGLE_LLM_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxHistoryMessages != 30 {
		t.Errorf("MaxHistoryMessages default = %d, want 30", cfg.MaxHistoryMessages)
	}
	if cfg.KB.ChunkSize != 900 || cfg.KB.ChunkOverlap != 150 {
		t.Errorf("KB chunk defaults = %d/%d, want 900/150", cfg.KB.ChunkSize, cfg.KB.ChunkOverlap)
	}
	if cfg.Timeouts.ImageTaskTimeoutSec != 90 {
		t.Errorf("ImageTaskTimeoutSec default = %d, want 90", cfg.Timeouts.ImageTaskTimeoutSec)
	}
	want, _ := filepath.Abs(dir)
	if cfg.Workdir != want {
		t.Errorf("Workdir = %q, want %q", cfg.Workdir, want)
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
