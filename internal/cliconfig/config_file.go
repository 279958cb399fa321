package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Backend    string `toml:"backend"`
	DataDir    string `toml:"data_dir"`
	ReportPath string `toml:"report"`

	TimesToKill       int    `toml:"times_to_kill"`
	Seed              int64  `toml:"seed"`
	MaxKillDelay      string `toml:"max_kill_delay"`
	MaxWarmupRequests int    `toml:"max_warmup_requests"`
	MaxWriteSize      int    `toml:"max_write_size"`
	MaxStressRequests int    `toml:"max_stress_requests"`
	AcceptPageTears   *bool  `toml:"accept_page_tears"`

	MaxCapacity          int    `toml:"max_capacity"`
	PageSize             int    `toml:"page_size"`
	EnforcePerPageWrites *bool  `toml:"enforce_per_page_writes"`
	MmapWriteMode        string `toml:"mmap_write_mode"`

	Debug *bool `toml:"debug"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.crashprobe/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".crashprobe", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("backend", fc.Backend, &cfg.Backend)
	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("report", fc.ReportPath, &cfg.ReportPath)
	s.setString("mmap-write-mode", fc.MmapWriteMode, &cfg.MmapWriteMode)

	if err := s.setDuration("max-kill-delay", fc.MaxKillDelay, &cfg.MaxKillDelay); err != nil {
		return err
	}

	s.setInt("times-to-kill", fc.TimesToKill, &cfg.TimesToKill)
	s.setInt64("seed", fc.Seed, &cfg.Seed)
	s.setInt("max-warmup", fc.MaxWarmupRequests, &cfg.MaxWarmupRequests)
	s.setInt("max-write-size", fc.MaxWriteSize, &cfg.MaxWriteSize)
	s.setInt("max-stress", fc.MaxStressRequests, &cfg.MaxStressRequests)
	s.setInt("max-capacity", fc.MaxCapacity, &cfg.MaxCapacity)
	s.setInt("page-size", fc.PageSize, &cfg.PageSize)

	s.setBool("accept-page-tears", fc.AcceptPageTears, &cfg.AcceptPageTears)
	s.setBool("per-page-writes", fc.EnforcePerPageWrites, &cfg.EnforcePerPageWrites)
	s.setBool("debug", fc.Debug, &cfg.Debug)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
