package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/crashprobe"
	"github.com/bft-labs/crashprobe/internal/cliconfig"
	"github.com/bft-labs/crashprobe/internal/report"
	"github.com/bft-labs/crashprobe/pkg/log"
)

const longHelp = `Kill storage backends mid-write and check what they recover.

Each epoch starts a worker process hosting one backend, reads back the whole
store, compares it with every write the worker acknowledged, issues random
reads, writes and flushes, and SIGKILLs the worker at a random moment.
A write whose acknowledgement was lost may or may not survive; anything else
that differs is a consistency failure.

Backends: durable, channel, mmap-pages, mmap-raw (or "all").`

var exampleUsage = strings.TrimSpace(`
  crashprobe run --backend mmap-pages --times-to-kill 200
  crashprobe run --backend all --seed 42 --per-page-writes --accept-page-tears
  crashprobe report --report /tmp/crashprobe/report.json
`)

var errRunFailed = errors.New("consistency check failed")

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	root := &cobra.Command{
		Use:           "crashprobe",
		Short:         "Crash-consistency harness for persistent byte arrays",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newWorkerCommand(), newReportCommand())

	if err := root.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			logger := cliconfig.Logger(false)
			logger.Error().Err(err).Msg("crashprobe")
		}
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run kill epochs against one backend or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default $HOME/.crashprobe/config.toml),
			// then env, then flag overrides.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			zl := cliconfig.Logger(cfg.Debug)
			zl.Info().Interface("config", cfg).Msg("configuration")

			cfgs, err := cfg.ControllerConfigs()
			if err != nil {
				return err
			}

			// Workers inherit the environment, so --debug reaches them too.
			if cfg.Debug {
				os.Setenv("CRASHPROBE_DEBUG", "true")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reports, runErr := crashprobe.Run(ctx, cfgs, log.NewZerologAdapterWithLogger(zl))

			repo := report.NewFileRepository(cfg.ReportPath)
			if err := repo.Save(context.Background(), reports); err != nil {
				zl.Error().Err(err).Str("path", repo.Path()).Msg("failed to save report")
			} else {
				zl.Info().Str("path", repo.Path()).Msg("report saved")
			}

			printSummary(cmd.OutOrStdout(), reports)
			if runErr != nil {
				return runErr
			}
			for _, rep := range reports {
				if !rep.Passed {
					return errRunFailed
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.crashprobe/config.toml)")
	f.StringVar(&cfg.Backend, "backend", cfg.Backend, `backend to test: durable, channel, mmap-pages, mmap-raw or "all"`)
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for backend files (default: $TMPDIR/crashprobe)")
	f.StringVar(&cfg.ReportPath, "report", cfg.ReportPath, "report JSON path (default: <data-dir>/report.json)")

	f.IntVar(&cfg.TimesToKill, "times-to-kill", cfg.TimesToKill, "number of kill epochs")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed (0 picks one from the clock)")
	f.DurationVar(&cfg.MaxKillDelay, "max-kill-delay", cfg.MaxKillDelay, "upper bound of the delay between starting the killer and the kill")
	f.IntVar(&cfg.MaxWarmupRequests, "max-warmup", cfg.MaxWarmupRequests, "upper bound of unkilled requests after each recovery")
	f.IntVar(&cfg.MaxWriteSize, "max-write-size", cfg.MaxWriteSize, "largest random read or write in bytes")
	f.IntVar(&cfg.MaxStressRequests, "max-stress", cfg.MaxStressRequests, "force the kill after this many stress requests (0: no limit)")
	f.BoolVar(&cfg.AcceptPageTears, "accept-page-tears", cfg.AcceptPageTears, "accept recovered states made of whole old or new pages")

	f.IntVar(&cfg.MaxCapacity, "max-capacity", cfg.MaxCapacity, "backend capacity in bytes")
	f.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "backend page size in bytes")
	f.BoolVar(&cfg.EnforcePerPageWrites, "per-page-writes", cfg.EnforcePerPageWrites, "split every write at page boundaries inside the worker")
	f.StringVar(&cfg.MmapWriteMode, "mmap-write-mode", cfg.MmapWriteMode, "mmap-raw store strategy: bulk or bytewise")

	f.BoolVar(&cfg.Debug, "debug", cfg.Debug, "debug logging")
	return cmd
}

func newWorkerCommand() *cobra.Command {
	var backend, dataDir string

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Serve one backend over stdin/stdout (started by run)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := os.Getenv("CRASHPROBE_DEBUG")
			debugLog := v == "true" || v == "1"
			zl := cliconfig.Logger(debugLog).With().Str("role", "worker").Int("pid", os.Getpid()).Logger()
			return crashprobe.ServeWorker(backend, dataDir, log.NewZerologAdapterWithLogger(zl))
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "backend kind")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for backend files")
	_ = cmd.MarkFlagRequired("backend")
	_ = cmd.MarkFlagRequired("data-dir")
	return cmd
}

func newReportCommand() *cobra.Command {
	path := cliconfig.DefaultConfig().ReportPath

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a saved report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg := cliconfig.DefaultConfig()
				if err := cfg.Validate(); err != nil {
					return err
				}
				path = cfg.ReportPath
			}
			reports, err := report.NewFileRepository(path).Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load report: %w", err)
			}
			if len(reports) == 0 {
				return fmt.Errorf("no report at %s", path)
			}
			printSummary(cmd.OutOrStdout(), reports)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "report", path, "report JSON path (default: $TMPDIR/crashprobe/report.json)")
	return cmd
}

func printSummary(w io.Writer, reports []report.Report) {
	for _, rep := range reports {
		verdict := "PASS"
		if !rep.Passed {
			verdict = "FAIL"
		}
		fmt.Fprintf(w, "%s %-10s run=%s seed=%d epochs=%d anomalies=%d\n",
			verdict, rep.Backend, rep.RunID, rep.Seed, rep.Epochs, rep.Anomalies)
		if res, ok := rep.FirstFailure(); ok {
			fmt.Fprintf(w, "     epoch %d: %s (%s)\n", res.Epoch, res.Label, res.Kind)
			if res.Detail != "" {
				fmt.Fprintf(w, "     %s\n", res.Detail)
			}
		}
	}
}
