package controller

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/crashprobe/internal/report"
	"github.com/bft-labs/crashprobe/internal/storage"
)

// testExecSpawner re-executes the test binary, which TestMain turns into a
// worker.
func testExecSpawner(t *testing.T, cfg Config) *ExecSpawner {
	t.Helper()
	return &ExecSpawner{
		Path: os.Args[0],
		Env: append(cfg.Storage.Env(),
			envTestWorker+"="+string(cfg.Backend),
			envTestDataDir+"="+cfg.DataDir,
		),
		Stderr: io.Discard,
	}
}

func TestExecSpawner_RealKills(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}

	for _, kind := range []storage.Kind{storage.KindDurable, storage.KindMmapRaw} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := testConfig(t, kind)
			cfg.TimesToKill = 3
			cfg.MaxKillDelay = DefaultConfig().MaxKillDelay
			cfg.MaxStressRequests = 0

			d, err := NewDriver(cfg, testExecSpawner(t, cfg), WithoutGuard())
			require.NoError(t, err)
			rep, err := d.Run(context.Background())
			require.NoError(t, err)

			first, _ := rep.FirstFailure()
			require.True(t, rep.Passed, "first failure: %+v", first)
			require.Equal(t, cfg.TimesToKill+2, rep.Epochs)
		})
	}
}

func TestExecSpawner_WorkerExitsCleanlyOnClose(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}

	cfg := testConfig(t, storage.KindChannel)
	cfg.TimesToKill = 0
	d, err := NewDriver(cfg, testExecSpawner(t, cfg), WithoutGuard())
	require.NoError(t, err)

	require.NoError(t, d.recoveryEpoch(context.Background(), 0, true))
	res := d.results.Results()
	require.Len(t, res, 1)
	require.Equal(t, report.KindVerified, res[0].Kind)
}

func TestNewExecSpawner(t *testing.T) {
	cfg := storage.DefaultConfig()
	sp, err := NewExecSpawner(storage.KindMmapPages, "/tmp/data", cfg)
	require.NoError(t, err)

	require.Equal(t, []string{"worker", "--backend", "mmap-pages", "--data-dir", "/tmp/data"}, sp.Args)
	require.Equal(t, cfg.Env(), sp.Env)
	require.NotEmpty(t, sp.Path)
}
