package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bft-labs/crashprobe/internal/controller"
	"github.com/bft-labs/crashprobe/internal/report"
	"github.com/bft-labs/crashprobe/internal/storage"
)

// AllBackends selects every backend kind, run concurrently.
const AllBackends = "all"

// DefaultReportName is the report file created inside DataDir when no
// report path is given.
const DefaultReportName = "report.json"

// Config holds CLI configuration for crashprobe.
type Config struct {
	Backend    string
	DataDir    string
	ReportPath string

	TimesToKill       int
	Seed              int64
	MaxKillDelay      time.Duration
	MaxWarmupRequests int
	MaxWriteSize      int
	MaxStressRequests int
	AcceptPageTears   bool

	MaxCapacity          int
	PageSize             int
	EnforcePerPageWrites bool
	MmapWriteMode        string

	Debug bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	ctl := controller.DefaultConfig()
	st := storage.DefaultConfig()
	return Config{
		Backend:           string(ctl.Backend),
		DataDir:           "", // Derived during Validate
		ReportPath:        "", // Derived from DataDir during Validate
		TimesToKill:       ctl.TimesToKill,
		MaxKillDelay:      ctl.MaxKillDelay,
		MaxWarmupRequests: ctl.MaxWarmupRequests,
		MaxWriteSize:      ctl.MaxWriteSize,
		MaxCapacity:       st.MaxCapacity,
		PageSize:          st.PageSize,
		MmapWriteMode:     string(st.MmapWriteMode),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
// A zero Seed is replaced by a time-based one so the report records the
// seed actually used.
func (c *Config) Validate() error {
	if c.Backend != AllBackends {
		if _, err := storage.ParseKind(c.Backend); err != nil {
			return err
		}
	}

	if c.DataDir == "" {
		c.DataDir = filepath.Join(os.TempDir(), "crashprobe")
	}
	if c.ReportPath == "" {
		c.ReportPath = filepath.Join(c.DataDir, DefaultReportName)
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}

	if c.TimesToKill < 0 {
		return fmt.Errorf("times-to-kill must not be negative")
	}
	if c.MaxKillDelay < 0 {
		return fmt.Errorf("max kill delay must not be negative")
	}
	return c.StorageConfig().Validate()
}

// Backends returns the backend kinds selected by Backend.
func (c Config) Backends() ([]storage.Kind, error) {
	if c.Backend == AllBackends {
		return storage.Kinds(), nil
	}
	kind, err := storage.ParseKind(c.Backend)
	if err != nil {
		return nil, err
	}
	return []storage.Kind{kind}, nil
}

// StorageConfig returns the backend configuration handed to workers.
func (c Config) StorageConfig() storage.Config {
	return storage.Config{
		MaxCapacity:          c.MaxCapacity,
		PageSize:             c.PageSize,
		EnforcePerPageWrites: c.EnforcePerPageWrites,
		MmapWriteMode:        storage.WriteMode(c.MmapWriteMode),
	}
}

// ControllerConfigs returns one controller configuration per selected
// backend, each with its own data directory under DataDir.
func (c Config) ControllerConfigs() ([]controller.Config, error) {
	kinds, err := c.Backends()
	if err != nil {
		return nil, err
	}
	cfgs := make([]controller.Config, 0, len(kinds))
	for _, kind := range kinds {
		cfg := controller.Config{
			Backend:           kind,
			DataDir:           filepath.Join(c.DataDir, string(kind)),
			Storage:           c.StorageConfig(),
			TimesToKill:       c.TimesToKill,
			Seed:              c.Seed,
			MaxKillDelay:      c.MaxKillDelay,
			MaxWarmupRequests: c.MaxWarmupRequests,
			MaxWriteSize:      c.MaxWriteSize,
			MaxStressRequests: c.MaxStressRequests,
			AcceptPageTears:   c.AcceptPageTears,
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

// Settings returns the reproducibility settings recorded in reports.
func (c Config) Settings() report.Settings {
	return report.Settings{
		MaxCapacity:          c.MaxCapacity,
		PageSize:             c.PageSize,
		EnforcePerPageWrites: c.EnforcePerPageWrites,
		MmapWriteMode:        c.MmapWriteMode,
		TimesToKill:          c.TimesToKill,
		AcceptPageTears:      c.AcceptPageTears,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if non-zero and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64. Zero leaves dst untouched.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i == 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
