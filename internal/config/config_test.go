package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Chunking.MaxChunkDuration() != 20*time.Minute {
		t.Errorf("MaxChunkDuration = %s, want 20m", cfg.Chunking.MaxChunkDuration())
	}
	if cfg.Chunking.SpeakerGap() != 3*time.Second {
		t.Errorf("SpeakerGap = %s, want 3s", cfg.Chunking.SpeakerGap())
	}
	if !cfg.AllowedExtension(".mp3") {
		t.Error(".mp3 should be allowed by default")
	}
	if cfg.AllowedExtension(".exe") {
		t.Error(".exe should not be allowed")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
chunking:
  max_chunk_minutes: 10
  seam_overlap_sec: 2
server:
  port: "9000"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunking.MaxChunkMinutes != 10 {
		t.Errorf("MaxChunkMinutes = %d, want 10", cfg.Chunking.MaxChunkMinutes)
	}
	if cfg.Chunking.SeamOverlap() != 2*time.Second {
		t.Errorf("SeamOverlap = %s, want 2s", cfg.Chunking.SeamOverlap())
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Server.Port)
	}
	// Untouched fields keep defaults.
	if cfg.Chunking.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want default 5", cfg.Chunking.MaxRetries)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "7777")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Key != "sk-test" {
		t.Errorf("API.Key = %q, want sk-test", cfg.API.Key)
	}
	if cfg.Server.Port != "7777" {
		t.Errorf("Port = %q, want 7777", cfg.Server.Port)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("chunking:\n  max_chunk_minutes: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative max_chunk_minutes")
	}
}
