package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all testforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM gateway configuration
	LLM LLMConfig `yaml:"llm"`

	// Planner settings
	Planner PlannerConfig `yaml:"planner"`

	// Test code generation settings
	Writer WriterConfig `yaml:"writer"`

	// Execution settings
	Execution ExecutionConfig `yaml:"execution"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM gateway.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, anthropic
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// PlannerConfig configures test planning.
type PlannerConfig struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// SchemaPreviewChars bounds how much of each request schema is
	// serialized into the planning prompt.
	SchemaPreviewChars int `yaml:"schema_preview_chars"`
}

// WriterConfig configures test code generation.
type WriterConfig struct {
	// ChunkSize is the maximum number of plan items per codegen call.
	// Dependency chains are never split across chunks, so a single
	// chunk may exceed this when a chain is longer.
	ChunkSize int `yaml:"chunk_size"`
	// MaxConcurrentChunks bounds parallel codegen calls within the
	// writing phase.
	MaxConcurrentChunks int `yaml:"max_concurrent_chunks"`
}

// ExecutionConfig configures the build/test tool invocation.
type ExecutionConfig struct {
	TestTimeout    string `yaml:"test_timeout"`
	BuildTimeout   string `yaml:"build_timeout"`
	MaxOutputBytes int64  `yaml:"max_output_bytes"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Name:    "testforge",
		Version: "0.1.0",
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  "120s",
		},
		Planner: PlannerConfig{
			Temperature:        0.1,
			MaxTokens:          8192,
			SchemaPreviewChars: 400,
		},
		Writer: WriterConfig{
			ChunkSize:           8,
			MaxConcurrentChunks: 2,
		},
		Execution: ExecutionConfig{
			TestTimeout:    "5m",
			BuildTimeout:   "3m",
			MaxOutputBytes: 4 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, applying defaults for
// unset fields and environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides layers TESTFORGE_* environment variables over the
// file-based configuration. API keys in particular usually arrive this way.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TESTFORGE_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("TESTFORGE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TESTFORGE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("TESTFORGE_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("TESTFORGE_WRITER_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Writer.ChunkSize = n
		}
	}
	if v := os.Getenv("TESTFORGE_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

// LLMTimeout parses the configured LLM timeout with a sane fallback.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// TestTimeout parses the configured test-run timeout.
func (c *Config) TestTimeout() time.Duration {
	return parseDuration(c.Execution.TestTimeout, 5*time.Minute)
}

// BuildTimeout parses the configured compile-check timeout.
func (c *Config) BuildTimeout() time.Duration {
	return parseDuration(c.Execution.BuildTimeout, 3*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
