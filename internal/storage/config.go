package storage

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables read once when a worker constructs its backend.
const (
	EnvMaxCapacity          = "CRASHPROBE_MAX_CAPACITY"
	EnvPageSize             = "CRASHPROBE_PAGE_SIZE"
	EnvEnforcePerPageWrites = "CRASHPROBE_ENFORCE_PER_PAGE_WRITES"
	EnvMmapWriteMode        = "CRASHPROBE_MMAP_WRITE_MODE"
)

// WriteMode selects how the mmap-raw backend stores a SetBytes payload.
type WriteMode string

const (
	// WriteBulk stores the payload with a single copy.
	WriteBulk WriteMode = "bulk"
	// WriteBytewise stores the payload one byte at a time.
	WriteBytewise WriteMode = "bytewise"
)

// Config describes the storage region a backend manages.
type Config struct {
	MaxCapacity int
	PageSize    int

	// EnforcePerPageWrites makes the worker split SetBytes at page
	// boundaries, one backend call per page.
	EnforcePerPageWrites bool

	MmapWriteMode WriteMode
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxCapacity:   1_000_000,
		PageSize:      4096,
		MmapWriteMode: WriteBulk,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.MaxCapacity <= 0 {
		return fmt.Errorf("max capacity must be positive, got %d", c.MaxCapacity)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	switch c.MmapWriteMode {
	case WriteBulk, WriteBytewise:
	default:
		return fmt.Errorf("mmap write mode must be %q or %q, got %q", WriteBulk, WriteBytewise, c.MmapWriteMode)
	}
	return nil
}

// Env renders the configuration as environment entries for a worker process.
func (c Config) Env() []string {
	return []string{
		EnvMaxCapacity + "=" + strconv.Itoa(c.MaxCapacity),
		EnvPageSize + "=" + strconv.Itoa(c.PageSize),
		EnvEnforcePerPageWrites + "=" + strconv.FormatBool(c.EnforcePerPageWrites),
		EnvMmapWriteMode + "=" + string(c.MmapWriteMode),
	}
}

// ConfigFromEnv starts from DefaultConfig and applies CRASHPROBE_* variables.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv(EnvMaxCapacity); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", EnvMaxCapacity, err)
		}
		cfg.MaxCapacity = n
	}
	if v := os.Getenv(EnvPageSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", EnvPageSize, err)
		}
		cfg.PageSize = n
	}
	if v := os.Getenv(EnvEnforcePerPageWrites); v != "" {
		cfg.EnforcePerPageWrites = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvMmapWriteMode); v != "" {
		cfg.MmapWriteMode = WriteMode(v)
	}

	return cfg, cfg.Validate()
}
