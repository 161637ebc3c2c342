package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// BackendNotify consumes inotify through github.com/syncthing/notify.
	BackendNotify = "notify"
	// BackendFSNotify consumes change events through github.com/fsnotify/fsnotify.
	BackendFSNotify = "fsnotify"
)

// MinInotifyBufferSize fits one inotify event header plus a NAME_MAX name and its terminator.
const MinInotifyBufferSize = 16 + 255 + 1

// Config holds the benchmark parameters
type Config struct {
	// TargetCount is the number of observations every strategy must reach
	TargetCount int `yaml:"target_count"`

	// Warmup is how long the producer runs before the first strategy starts
	Warmup time.Duration `yaml:"warmup"`

	// FilePrefix, FileSuffix and FileContent shape the produced entries
	FilePrefix  string `yaml:"file_prefix"`
	FileSuffix  string `yaml:"file_suffix"`
	FileContent string `yaml:"file_content"`

	// ListBatch is the number of entries requested per directory read (0 reads a listing in one call)
	ListBatch int `yaml:"list_batch"`

	// InotifyBufferSize is the read buffer of the blocking watch, in bytes
	InotifyBufferSize int `yaml:"inotify_buffer_size"`

	// StreamBufferSize is the event buffer of the cooperative watch
	StreamBufferSize int `yaml:"stream_buffer_size"`

	// WatchBackend selects the cooperative watch subscription ("notify" or "fsnotify")
	WatchBackend string `yaml:"watch_backend"`

	// StateDir enables the run history store when set
	StateDir string `yaml:"state_dir"`

	// MetricsAddr serves Prometheus metrics while the benchmark runs when set
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		TargetCount:       200_000,
		Warmup:            time.Second,
		FilePrefix:        "file",
		FileSuffix:        ".txt",
		FileContent:       "Hello, world!",
		ListBatch:         256,
		InotifyBufferSize: 8096,
		StreamBufferSize:  1024,
		WatchBackend:      BackendNotify,
	}
}

// LoadFile overlays a YAML file on the default configuration
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return ApplyEnv(DefaultConfig())
}

// ApplyEnv overrides cfg with any DIRBENCH_* variables that are set
func ApplyEnv(cfg *Config) *Config {
	if v := os.Getenv("DIRBENCH_TARGET_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TargetCount = n
		}
	}

	if v := os.Getenv("DIRBENCH_WARMUP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Warmup = d
		}
	}

	if v := os.Getenv("DIRBENCH_FILE_PREFIX"); v != "" {
		cfg.FilePrefix = v
	}

	if v := os.Getenv("DIRBENCH_FILE_SUFFIX"); v != "" {
		cfg.FileSuffix = v
	}

	if v := os.Getenv("DIRBENCH_FILE_CONTENT"); v != "" {
		cfg.FileContent = v
	}

	if v := os.Getenv("DIRBENCH_LIST_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ListBatch = n
		}
	}

	if v := os.Getenv("DIRBENCH_INOTIFY_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.InotifyBufferSize = n
		}
	}

	if v := os.Getenv("DIRBENCH_STREAM_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamBufferSize = n
		}
	}

	if v := os.Getenv("DIRBENCH_WATCH_BACKEND"); v != "" {
		cfg.WatchBackend = v
	}

	if v := os.Getenv("DIRBENCH_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}

	if v := os.Getenv("DIRBENCH_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.TargetCount <= 0 {
		return fmt.Errorf("target count must be positive, got: %d", c.TargetCount)
	}

	if c.Warmup < 0 {
		return fmt.Errorf("warmup must be >= 0, got: %s", c.Warmup)
	}

	if c.FilePrefix == "" && c.FileSuffix == "" {
		return fmt.Errorf("file prefix and suffix cannot both be empty")
	}

	if c.ListBatch < 0 {
		return fmt.Errorf("list batch must be >= 0, got: %d", c.ListBatch)
	}

	if c.InotifyBufferSize < MinInotifyBufferSize {
		return fmt.Errorf("inotify buffer must be at least %d bytes, got: %d", MinInotifyBufferSize, c.InotifyBufferSize)
	}

	if c.StreamBufferSize <= 0 {
		return fmt.Errorf("stream buffer size must be positive, got: %d", c.StreamBufferSize)
	}

	if c.WatchBackend != BackendNotify && c.WatchBackend != BackendFSNotify {
		return fmt.Errorf("invalid watch backend: %s (must be '%s' or '%s')", c.WatchBackend, BackendNotify, BackendFSNotify)
	}

	return nil
}

// FileName returns the name of the n-th produced entry
func (c *Config) FileName(n int64) string {
	return c.FilePrefix + strconv.FormatInt(n, 10) + c.FileSuffix
}
