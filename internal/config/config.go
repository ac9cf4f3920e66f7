package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Chunking ChunkingConfig `yaml:"chunking"`
	API      APIConfig      `yaml:"api"`
	LLM      LLMConfig      `yaml:"llm"`
	Output   OutputConfig   `yaml:"output"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// ChunkingConfig controls how long audio is split and re-merged.
type ChunkingConfig struct {
	// MaxChunkMinutes is the chunk duration ceiling; files at or under it
	// are processed as a single chunk.
	MaxChunkMinutes int `yaml:"max_chunk_minutes"`

	// SeamOverlapSec widens the front of every chunk after the first, so
	// words cut at a boundary appear in at least one chunk. Zero disables
	// overlap and seam de-duplication.
	SeamOverlapSec float64 `yaml:"seam_overlap_sec"`

	// SpeakerGapSec is the boundary heuristic threshold: the opening
	// utterance of a chunk inherits the previous chunk's trailing speaker
	// identity only when it starts within this many seconds of it.
	SpeakerGapSec float64 `yaml:"speaker_gap_sec"`

	MaxConcurrentChunks int `yaml:"max_concurrent_chunks"`
	MaxRetries          int `yaml:"max_retries"`
	RetryBaseDelaySec   int `yaml:"retry_base_delay_sec"`
	APIRateLimitPerMin  int `yaml:"api_rate_limit_per_min"`
}

// MaxChunkDuration returns the chunk ceiling as a duration.
func (c ChunkingConfig) MaxChunkDuration() time.Duration {
	return time.Duration(c.MaxChunkMinutes) * time.Minute
}

// SeamOverlap returns the seam overlap as a duration.
func (c ChunkingConfig) SeamOverlap() time.Duration {
	return time.Duration(c.SeamOverlapSec * float64(time.Second))
}

// SpeakerGap returns the speaker bridge threshold as a duration.
func (c ChunkingConfig) SpeakerGap() time.Duration {
	return time.Duration(c.SpeakerGapSec * float64(time.Second))
}

// RetryBaseDelay returns the first retry backoff as a duration.
func (c ChunkingConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySec) * time.Second
}

// APIConfig points at the hosted diarization service.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Key     string `yaml:"key"`
	Model   string `yaml:"model"`
}

// LLMConfig controls the prose formatting step.
type LLMConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

// OutputConfig controls artifact writing.
type OutputConfig struct {
	Dir               string   `yaml:"dir"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Env  string `yaml:"env"`  // dev, prod
	Port string `yaml:"port"`
}

// LogConfig configures logging in serve mode. File enables rotating file
// output alongside stderr.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text, json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns a Config with hardcoded defaults.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			MaxChunkMinutes:     20,
			SeamOverlapSec:      0,
			SpeakerGapSec:       3,
			MaxConcurrentChunks: 3,
			MaxRetries:          5,
			RetryBaseDelaySec:   3,
			APIRateLimitPerMin:  30,
		},
		API: APIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-transcribe-diarize",
		},
		LLM: LLMConfig{
			Enabled:   true,
			Model:     "gpt-4o-mini",
			BatchSize: 50,
		},
		Output: OutputConfig{
			Dir: "output",
			AllowedExtensions: []string{
				".wav", ".mp3", ".mp4", ".mpeg", ".mpga", ".m4a", ".webm",
			},
		},
		Server: ServerConfig{
			Env:  "dev",
			Port: "8080",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
	}
}

// Load reads a YAML config file over the defaults, then applies environment
// overrides. An empty path skips the file and returns defaults + env.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Server.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.Chunking.MaxChunkMinutes <= 0 {
		return fmt.Errorf("chunking.max_chunk_minutes must be positive, got %d", c.Chunking.MaxChunkMinutes)
	}
	if c.Chunking.MaxConcurrentChunks <= 0 {
		return fmt.Errorf("chunking.max_concurrent_chunks must be positive, got %d", c.Chunking.MaxConcurrentChunks)
	}
	if c.Chunking.SeamOverlapSec < 0 || c.Chunking.SpeakerGapSec < 0 {
		return fmt.Errorf("chunking overlap and speaker gap must not be negative")
	}
	return nil
}

// AllowedExtension reports whether ext (including the dot) is accepted.
func (c *Config) AllowedExtension(ext string) bool {
	for _, allowed := range c.Output.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
