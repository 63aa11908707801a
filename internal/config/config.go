package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFile is read when WRAPSHOT_CONFIG is unset. A missing file is not an error.
const DefaultFile = "wrapshot.toml"

type Config struct {
	Port string

	// Auth. Empty disables the bearer check.
	APIKey string

	// Claude extraction
	AnthropicAPIKey    string
	AnthropicModel     string
	ExtractMaxTokens   int
	ExtractTemperature float64

	// Worker pool
	WorkerCount          int
	MaxQueueSize         int
	MaxConcurrentExtract int

	// Upload limits
	MaxUploadBytes int64

	// Chunking
	MinChunkChars int
	MaxChunkChars int
	CharsPerPage  int

	// Job state
	DBPath        string
	StaleTimeout  time.Duration
	SweepInterval time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

// fileConfig mirrors the TOML layout. Pointer fields distinguish unset keys
// from zero values so the file only overrides what it names.
type fileConfig struct {
	Port    *string `toml:"port"`
	APIKey  *string `toml:"api_key"`
	DBPath  *string `toml:"db_path"`
	Extract struct {
		Model         *string  `toml:"model"`
		MaxTokens     *int     `toml:"max_tokens"`
		Temperature   *float64 `toml:"temperature"`
		MaxConcurrent *int     `toml:"max_concurrent"`
	} `toml:"extract"`
	Chunking struct {
		MinChars     *int `toml:"min_chars"`
		MaxChars     *int `toml:"max_chars"`
		CharsPerPage *int `toml:"chars_per_page"`
	} `toml:"chunking"`
	Jobs struct {
		Workers       *int    `toml:"workers"`
		QueueSize     *int    `toml:"queue_size"`
		StaleTimeout  *string `toml:"stale_timeout"`
		SweepInterval *string `toml:"sweep_interval"`
	} `toml:"jobs"`
	Upload struct {
		MaxBytes    *int64 `toml:"max_bytes"`
		PDFFallback *bool  `toml:"pdf_fallback_pdftotext"`
	} `toml:"upload"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:                 "8090",
		AnthropicModel:       "claude-sonnet-4-5-20250929",
		ExtractMaxTokens:     8192,
		ExtractTemperature:   0.1,
		WorkerCount:          2,
		MaxQueueSize:         50,
		MaxConcurrentExtract: 3,
		MaxUploadBytes:       52428800, // 50MB
		MinChunkChars:        4000,
		MaxChunkChars:        12000,
		CharsPerPage:         1800,
		DBPath:               "wrapshot.db",
		StaleTimeout:         10 * time.Minute,
		SweepInterval:        time.Minute,
		PDFFallbackPdftotext: true,
	}
}

// Load builds the configuration from defaults, the optional TOML file named by
// WRAPSHOT_CONFIG, and environment variables, in that order.
func Load() (Config, error) {
	cfg := Defaults()

	path := envOr("WRAPSHOT_CONFIG", DefaultFile)
	if err := cfg.mergeFile(path); err != nil {
		return Config{}, err
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("WRAPSHOT_API_KEY", cfg.APIKey)
	cfg.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicModel = envOr("ANTHROPIC_MODEL", cfg.AnthropicModel)
	cfg.ExtractMaxTokens = envInt("EXTRACT_MAX_TOKENS", cfg.ExtractMaxTokens)
	cfg.ExtractTemperature = envFloat("EXTRACT_TEMPERATURE", cfg.ExtractTemperature)
	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.MaxConcurrentExtract = envInt("MAX_CONCURRENT_EXTRACT", cfg.MaxConcurrentExtract)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.MinChunkChars = envInt("MIN_CHUNK_CHARS", cfg.MinChunkChars)
	cfg.MaxChunkChars = envInt("MAX_CHUNK_CHARS", cfg.MaxChunkChars)
	cfg.CharsPerPage = envInt("CHARS_PER_PAGE", cfg.CharsPerPage)
	cfg.DBPath = envOr("WRAPSHOT_DB", cfg.DBPath)
	cfg.StaleTimeout = envDuration("STALE_TIMEOUT", cfg.StaleTimeout)
	cfg.SweepInterval = envDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	cfg.applyFallbacks()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.Port, fc.Port)
	setString(&c.APIKey, fc.APIKey)
	setString(&c.DBPath, fc.DBPath)
	setString(&c.AnthropicModel, fc.Extract.Model)
	setInt(&c.ExtractMaxTokens, fc.Extract.MaxTokens)
	if fc.Extract.Temperature != nil {
		c.ExtractTemperature = *fc.Extract.Temperature
	}
	setInt(&c.MaxConcurrentExtract, fc.Extract.MaxConcurrent)
	setInt(&c.MinChunkChars, fc.Chunking.MinChars)
	setInt(&c.MaxChunkChars, fc.Chunking.MaxChars)
	setInt(&c.CharsPerPage, fc.Chunking.CharsPerPage)
	setInt(&c.WorkerCount, fc.Jobs.Workers)
	setInt(&c.MaxQueueSize, fc.Jobs.QueueSize)
	if fc.Upload.MaxBytes != nil {
		c.MaxUploadBytes = *fc.Upload.MaxBytes
	}
	if fc.Upload.PDFFallback != nil {
		c.PDFFallbackPdftotext = *fc.Upload.PDFFallback
	}

	if err := setDuration(&c.StaleTimeout, fc.Jobs.StaleTimeout); err != nil {
		return fmt.Errorf("jobs.stale_timeout: %w", err)
	}
	if err := setDuration(&c.SweepInterval, fc.Jobs.SweepInterval); err != nil {
		return fmt.Errorf("jobs.sweep_interval: %w", err)
	}
	return nil
}

// applyFallbacks replaces non-positive sizing values with defaults.
func (c *Config) applyFallbacks() {
	d := Defaults()
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.MaxConcurrentExtract <= 0 {
		c.MaxConcurrentExtract = d.MaxConcurrentExtract
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.ExtractMaxTokens <= 0 {
		c.ExtractMaxTokens = d.ExtractMaxTokens
	}
	if c.CharsPerPage <= 0 {
		c.CharsPerPage = d.CharsPerPage
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
}

// Validate reports settings that cannot produce a working pipeline.
func (c Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return c.ValidateLimits()
}

// ValidateLimits checks everything except credentials.
func (c Config) ValidateLimits() error {
	if c.MinChunkChars <= 0 {
		return fmt.Errorf("MIN_CHUNK_CHARS must be positive, got %d", c.MinChunkChars)
	}
	if c.MaxChunkChars < c.MinChunkChars {
		return fmt.Errorf("MAX_CHUNK_CHARS (%d) must be >= MIN_CHUNK_CHARS (%d)", c.MaxChunkChars, c.MinChunkChars)
	}
	if c.StaleTimeout <= 0 {
		return fmt.Errorf("STALE_TIMEOUT must be positive")
	}
	if c.ExtractTemperature < 0 || c.ExtractTemperature > 1 {
		return fmt.Errorf("EXTRACT_TEMPERATURE must be within [0,1], got %g", c.ExtractTemperature)
	}
	if c.DBPath == "" {
		return fmt.Errorf("WRAPSHOT_DB is required")
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
