package controller

import (
	"fmt"
	"time"

	"github.com/bft-labs/crashprobe/internal/protocol"
	"github.com/bft-labs/crashprobe/internal/report"
	"github.com/bft-labs/crashprobe/internal/storage"
)

// frameOverhead covers the tag and length fields around a full-capacity read.
const frameOverhead = 16

// Config drives one run against one backend.
type Config struct {
	Backend storage.Kind
	DataDir string
	Storage storage.Config

	// TimesToKill is the number of kill epochs. Epochs 0..TimesToKill run,
	// each ending in a kill, followed by a final recovery check.
	TimesToKill int

	// Seed feeds every random choice and kill delay. Zero picks a
	// time-based seed.
	Seed int64

	MaxKillDelay      time.Duration
	MaxWarmupRequests int
	MaxWriteSize      int

	// MaxStressRequests, when positive, forces the killer to start after
	// that many stress requests.
	MaxStressRequests int

	// AcceptPageTears accepts a recovered state in which every page equals
	// either its pre-write or post-write content.
	AcceptPageTears bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Backend:           storage.KindDurable,
		Storage:           storage.DefaultConfig(),
		TimesToKill:       10,
		MaxKillDelay:      25 * time.Millisecond,
		MaxWarmupRequests: 20,
		MaxWriteSize:      10_000,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if _, err := storage.ParseKind(string(c.Backend)); err != nil {
		return err
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Storage.MaxCapacity+frameOverhead > protocol.MaxFrameSize {
		return fmt.Errorf("max capacity %d does not fit in one frame", c.Storage.MaxCapacity)
	}
	if c.TimesToKill < 0 {
		return fmt.Errorf("times to kill must not be negative, got %d", c.TimesToKill)
	}
	if c.MaxKillDelay < 0 {
		return fmt.Errorf("max kill delay must not be negative, got %v", c.MaxKillDelay)
	}
	if c.MaxWarmupRequests < 0 {
		return fmt.Errorf("max warmup requests must not be negative, got %d", c.MaxWarmupRequests)
	}
	if c.MaxWriteSize <= 0 {
		return fmt.Errorf("max write size must be positive, got %d", c.MaxWriteSize)
	}
	if c.MaxStressRequests < 0 {
		return fmt.Errorf("max stress requests must not be negative, got %d", c.MaxStressRequests)
	}
	return nil
}

// Settings returns the reproducibility settings recorded in the report.
func (c Config) Settings() report.Settings {
	return report.Settings{
		MaxCapacity:          c.Storage.MaxCapacity,
		PageSize:             c.Storage.PageSize,
		EnforcePerPageWrites: c.Storage.EnforcePerPageWrites,
		MmapWriteMode:        string(c.Storage.MmapWriteMode),
		TimesToKill:          c.TimesToKill,
		AcceptPageTears:      c.AcceptPageTears,
	}
}
