package cliconfig

import (
	"os"

	"github.com/bft-labs/crashprobe/internal/storage"
)

// ApplyEnvConfig applies configuration from environment variables (CRASHPROBE_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
//
// The storage variables are the ones workers read, so a value exported for
// the controller reaches its workers unchanged.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("backend", os.Getenv("CRASHPROBE_BACKEND"), &cfg.Backend)
	s.setString("data-dir", os.Getenv("CRASHPROBE_DATA_DIR"), &cfg.DataDir)
	s.setString("report", os.Getenv("CRASHPROBE_REPORT"), &cfg.ReportPath)
	s.setString("mmap-write-mode", os.Getenv(storage.EnvMmapWriteMode), &cfg.MmapWriteMode)

	if err := s.setDuration("max-kill-delay", os.Getenv("CRASHPROBE_MAX_KILL_DELAY"), &cfg.MaxKillDelay); err != nil {
		return err
	}

	if err := s.setIntFromString("times-to-kill", os.Getenv("CRASHPROBE_TIMES_TO_KILL"), &cfg.TimesToKill); err != nil {
		return err
	}
	if err := s.setInt64FromString("seed", os.Getenv("CRASHPROBE_SEED"), &cfg.Seed); err != nil {
		return err
	}
	if err := s.setIntFromString("max-warmup", os.Getenv("CRASHPROBE_MAX_WARMUP_REQUESTS"), &cfg.MaxWarmupRequests); err != nil {
		return err
	}
	if err := s.setIntFromString("max-write-size", os.Getenv("CRASHPROBE_MAX_WRITE_SIZE"), &cfg.MaxWriteSize); err != nil {
		return err
	}
	if err := s.setIntFromString("max-stress", os.Getenv("CRASHPROBE_MAX_STRESS_REQUESTS"), &cfg.MaxStressRequests); err != nil {
		return err
	}
	if err := s.setIntFromString("max-capacity", os.Getenv(storage.EnvMaxCapacity), &cfg.MaxCapacity); err != nil {
		return err
	}
	if err := s.setIntFromString("page-size", os.Getenv(storage.EnvPageSize), &cfg.PageSize); err != nil {
		return err
	}

	s.setBoolFromString("accept-page-tears", os.Getenv("CRASHPROBE_ACCEPT_PAGE_TEARS"), &cfg.AcceptPageTears)
	s.setBoolFromString("per-page-writes", os.Getenv(storage.EnvEnforcePerPageWrites), &cfg.EnforcePerPageWrites)
	s.setBoolFromString("debug", os.Getenv("CRASHPROBE_DEBUG"), &cfg.Debug)

	return nil
}
