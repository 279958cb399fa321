package controller

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/crashprobe/internal/report"
)

// SpawnerFunc builds the spawner for one run of a matrix.
type SpawnerFunc func(cfg Config) (Spawner, error)

// RunMatrix runs one Driver per config concurrently. Each config needs its
// own DataDir. Reports are returned in config order; a consistency failure
// in one run does not stop the others, but an infrastructure error cancels
// them all.
func RunMatrix(ctx context.Context, cfgs []Config, newSpawner SpawnerFunc, opts ...Option) ([]report.Report, error) {
	reports := make([]report.Report, len(cfgs))
	g, ctx := errgroup.WithContext(ctx)

	for i, cfg := range cfgs {
		i, cfg := i, cfg
		g.Go(func() error {
			spawner, err := newSpawner(cfg)
			if err != nil {
				return err
			}
			d, err := NewDriver(cfg, spawner, opts...)
			if err != nil {
				return err
			}
			rep, err := d.Run(ctx)
			reports[i] = rep
			return err
		})
	}

	err := g.Wait()
	return reports, err
}
