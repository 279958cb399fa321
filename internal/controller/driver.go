package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/bft-labs/crashprobe/internal/diff"
	"github.com/bft-labs/crashprobe/internal/guard"
	"github.com/bft-labs/crashprobe/internal/protocol"
	"github.com/bft-labs/crashprobe/internal/report"
	"github.com/bft-labs/crashprobe/pkg/log"
)

// errHalt ends an epoch whose outcome has already been recorded.
var errHalt = errors.New("controller: epoch halted")

// killOdds is the chance, one in killOdds, that a stress send starts the killer.
const killOdds = 5

// Stress operation weights.
const (
	weightSet   = 4
	weightFlush = 1
	weightGet   = 1
)

type op int

const (
	opSet op = iota
	opFlush
	opGet
)

type phase string

const (
	phaseRecover phase = "recover"
	phaseWarmup  phase = "warmup"
	phaseStress  phase = "stress"
	phaseClose   phase = "close"
)

// Option configures optional behavior of a Driver.
type Option func(*Driver)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithoutGuard disables the data directory watcher.
func WithoutGuard() Option {
	return func(d *Driver) {
		d.guarded = false
	}
}

// Driver runs the randomized kill-and-verify protocol against one backend.
// A Driver is single use.
type Driver struct {
	cfg     Config
	spawner Spawner
	logger  log.Logger
	guarded bool

	rng     *rand.Rand
	model   *Model
	results report.Log
	epochs  int

	// diagnose is set when an epoch ends in an unexpected error; the run
	// then performs one recovery-only epoch before halting.
	diagnose bool
}

// epochState is the per-epoch context of the drive loop.
type epochState struct {
	epoch  int
	phase  phase
	proc   Process
	client *client
	killer *killer
	sent   int
}

// NewDriver validates cfg and creates a Driver that starts workers through
// spawner.
func NewDriver(cfg Config, spawner Spawner, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.MaxWriteSize > cfg.Storage.MaxCapacity {
		cfg.MaxWriteSize = cfg.Storage.MaxCapacity
	}
	d := &Driver{
		cfg:     cfg,
		spawner: spawner,
		logger:  log.NewNoopLogger(),
		guarded: true,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		model:   NewModel(cfg.Storage.MaxCapacity),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(log.String("backend", string(cfg.Backend)))
	return d, nil
}

// Seed returns the effective random seed.
func (d *Driver) Seed() int64 { return d.cfg.Seed }

// Run executes epochs 0..TimesToKill, stopping at the first fatal result,
// then a final recovery check. Consistency failures are reported in the
// returned Report; the error is reserved for cancellation and failures to
// start a worker.
func (d *Driver) Run(ctx context.Context) (report.Report, error) {
	rep := report.New(string(d.cfg.Backend), d.cfg.Seed, d.cfg.Settings())
	d.logger.Info("run starting",
		log.String("run_id", rep.RunID),
		log.Int64("seed", d.cfg.Seed),
		log.Int("times_to_kill", d.cfg.TimesToKill),
	)

	g := d.startGuard()
	err := d.run(ctx)
	if g != nil {
		g.Stop()
		for _, v := range g.Violations() {
			d.record(d.epochs, report.KindAnomaly, "data file "+v.Op, v.File)
		}
		for _, f := range d.cfg.Backend.Files() {
			d.logger.Debug("data file writes observed", log.String("file", f), log.Int("writes", g.Writes(f)))
		}
	}

	rep.Finish(&d.results, d.epochs)
	d.logger.Info("run finished",
		log.Bool("passed", rep.Passed),
		log.Int("epochs", rep.Epochs),
		log.Int("anomalies", rep.Anomalies),
	)
	return rep, err
}

func (d *Driver) run(ctx context.Context) error {
	for epoch := 0; epoch <= d.cfg.TimesToKill; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.runEpoch(ctx, epoch); err != nil {
			return err
		}
		if d.results.Failed() {
			if d.diagnose {
				return d.recoveryEpoch(ctx, epoch+1, false)
			}
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.recoveryEpoch(ctx, d.cfg.TimesToKill+1, true)
}

func (d *Driver) startGuard() *guard.Guard {
	if !d.guarded {
		return nil
	}
	if err := os.MkdirAll(d.cfg.DataDir, 0o755); err != nil {
		d.logger.Warn("data dir unavailable, running unguarded", log.Err(err))
		return nil
	}
	g := guard.New(d.cfg.DataDir, d.cfg.Backend.Files(), d.logger)
	if err := g.Start(); err != nil {
		d.logger.Warn("file watcher unavailable, running unguarded", log.Err(err))
		return nil
	}
	return g
}

// spawn starts the worker of an epoch and arranges for ctx cancellation to
// kill it. The returned release func must be called after the worker was
// reaped.
func (d *Driver) spawn(ctx context.Context, epoch int) (*epochState, func() bool, error) {
	d.epochs++
	proc, err := spawnWithRetry(ctx, d.spawner, epoch, func(attempt int, err error) {
		d.logger.Warn("spawn failed, retrying", log.Int("epoch", epoch), log.Int("attempt", attempt), log.Err(err))
	})
	if err != nil {
		d.record(epoch, report.KindError, "spawn worker", err.Error())
		return nil, nil, fmt.Errorf("spawn epoch %d: %w", epoch, err)
	}
	release := context.AfterFunc(ctx, func() { _ = proc.Kill() })
	return &epochState{
		epoch:  epoch,
		phase:  phaseRecover,
		proc:   proc,
		client: newClient(proc),
	}, release, nil
}

func (d *Driver) runEpoch(ctx context.Context, epoch int) error {
	es, release, err := d.spawn(ctx, epoch)
	if err != nil {
		return err
	}
	defer release()

	driveErr := d.drive(es)

	if es.killer != nil {
		es.killer.Stop()
		if kerr := es.killer.Err(); kerr != nil {
			d.logger.Warn("kill failed", log.Int("epoch", epoch), log.Err(kerr))
		}
	}
	_ = es.proc.Kill()
	waitErr := es.proc.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	d.settle(es, driveErr, waitErr)
	return nil
}

// drive runs the recovery check, warm-up and stress phases. It returns only
// on error; a kill surfaces as a connection-closed error.
func (d *Driver) drive(es *epochState) error {
	if es.epoch == 0 {
		if err := d.seed(es); err != nil {
			return err
		}
	}
	if err := d.recover(es); err != nil {
		return err
	}

	es.phase = phaseWarmup
	for i, n := 0, d.warmupCount(); i < n; i++ {
		if err := d.step(es, d.pickWarmupOp()); err != nil {
			return err
		}
	}

	es.phase = phaseStress
	es.killer = newKiller(es.proc, d.killDelay())
	d.logger.Debug("killer scheduled", log.Int("epoch", es.epoch), log.Duration("delay", es.killer.Delay()))
	for i := 0; ; i++ {
		if d.cfg.MaxStressRequests > 0 && i >= d.cfg.MaxStressRequests {
			es.killer.Start()
		}
		if err := d.step(es, d.pickStressOp()); err != nil {
			return err
		}
	}
}

// seed writes the all-zero baseline so a fresh backend starts from a known
// state.
func (d *Driver) seed(es *epochState) error {
	d.model.Prepare(0, d.model.Acked())
	if err := es.client.call(protocol.SetBytes{Offset: 0, Data: d.model.Pending()}); err != nil {
		return err
	}
	d.model.Commit()
	return nil
}

// recover reads the whole backend and checks it against the model.
func (d *Driver) recover(es *epochState) error {
	actual, err := es.client.read(0, d.cfg.Storage.MaxCapacity)
	if err != nil {
		return err
	}
	if !d.verify(es.epoch, actual) {
		return errHalt
	}
	return nil
}

// verify checks a recovered state. It accepts the acknowledged state, the
// pending candidate (adopting it), or with AcceptPageTears a page-wise mix
// of the two. The pending candidate is cleared either way.
func (d *Driver) verify(epoch int, actual []byte) bool {
	acked, pending := d.model.Acked(), d.model.Pending()
	defer d.model.ClearPending()

	switch {
	case bytes.Equal(actual, acked):
		d.record(epoch, report.KindVerified, "state match", "")
		return true

	case pending != nil && bytes.Equal(actual, pending):
		d.record(epoch, report.KindAdopted, "unconfirmed committed", "")
		d.model.Adopt(actual)
		return true

	case pending != nil && d.cfg.AcceptPageTears &&
		diff.PageComposed(acked, pending, actual, d.cfg.Storage.PageSize):
		pages := diff.ClassifyPages(acked, pending, actual, d.cfg.Storage.PageSize)
		d.record(epoch, report.KindAdopted, "page-granular commit", pages.String())
		d.model.Adopt(actual)
		return true
	}

	d.record(epoch, report.KindFailure, "state mismatch", d.mismatchDetail(acked, pending, actual))
	return false
}

func (d *Driver) mismatchDetail(acked, pending, actual []byte) string {
	detail := diff.BuildDiff(acked, actual).String()
	if pending == nil || len(pending) != len(actual) {
		return detail
	}
	detail += "; " + diff.DescribeDiff(acked, "acked", pending, "pending", actual).String()
	if pages := diff.ClassifyPages(acked, pending, actual, d.cfg.Storage.PageSize); pages.Torn() || len(pages.Mixed) > 0 {
		detail += "; " + pages.String()
	}
	return detail
}

// step performs one request. In the stress phase each send may start the
// killer, so the Ok of a write can be lost after the worker applied it.
func (d *Driver) step(es *epochState, o op) error {
	switch o {
	case opSet:
		offset, data := d.randomWrite()
		d.model.Prepare(offset, data)
		if err := es.client.send(protocol.SetBytes{Offset: offset, Data: data}); err != nil {
			return err
		}
		d.afterSend(es)
		if err := es.client.recvOk(); err != nil {
			return err
		}
		d.model.Commit()

	case opFlush:
		if err := es.client.send(protocol.Flush{}); err != nil {
			return err
		}
		d.afterSend(es)
		if err := es.client.recvOk(); err != nil {
			return err
		}

	case opGet:
		offset, size := d.randomRange()
		if err := es.client.send(protocol.ReadBytes{Offset: offset, Size: size}); err != nil {
			return err
		}
		d.afterSend(es)
		data, err := es.client.recvData(size)
		if err != nil {
			return err
		}
		want := d.model.Expect(offset, size)
		if !bytes.Equal(data, want) {
			d.record(es.epoch, report.KindFailure, "read mismatch",
				fmt.Sprintf("read [%d,%d): %v", offset, offset+int64(size), diff.BuildDiff(want, data)))
			return errHalt
		}
	}
	return nil
}

func (d *Driver) afterSend(es *epochState) {
	es.sent++
	if es.phase != phaseStress || es.killer.Started() {
		return
	}
	if d.rng.Intn(killOdds) == 0 {
		es.killer.Start()
	}
}

// settle classifies how an epoch ended.
func (d *Driver) settle(es *epochState, driveErr, waitErr error) {
	fields := []log.Field{log.Int("epoch", es.epoch), log.String("phase", string(es.phase)), log.Int("requests", es.sent)}

	switch {
	case driveErr == nil, errors.Is(driveErr, errHalt):

	case errors.Is(driveErr, protocol.ErrCorruptFrame), errors.Is(driveErr, errUnexpectedResponse):
		d.record(es.epoch, report.KindProtocol, "protocol violation", driveErr.Error())

	case protocol.IsConnectionClosed(driveErr):
		killed := es.killer != nil && es.killer.Fired()
		switch {
		case killed:
			d.logger.Debug("worker killed", fields...)
		case es.phase == phaseRecover, es.phase == phaseClose:
			d.record(es.epoch, report.KindError, "worker died during "+string(es.phase), exitDetail(driveErr, waitErr))
		default:
			d.record(es.epoch, report.KindAnomaly, "unexpected worker exit", exitDetail(driveErr, waitErr))
		}

	default:
		d.record(es.epoch, report.KindError, "unexpected error in "+string(es.phase), driveErr.Error())
		d.diagnose = es.phase == phaseWarmup || es.phase == phaseStress
	}
}

func exitDetail(driveErr, waitErr error) string {
	if waitErr == nil {
		return driveErr.Error()
	}
	return fmt.Sprintf("%v (exit: %v)", driveErr, waitErr)
}

// recoveryEpoch spawns a worker only to verify its recovered state. With
// closeCleanly it then sends Close and expects Ok and a clean exit; otherwise
// the worker is killed.
func (d *Driver) recoveryEpoch(ctx context.Context, epoch int, closeCleanly bool) error {
	es, release, err := d.spawn(ctx, epoch)
	if err != nil {
		return err
	}
	defer release()

	driveErr := d.recover(es)
	if driveErr == nil && closeCleanly {
		es.phase = phaseClose
		driveErr = es.client.call(protocol.Close{})
	}
	if driveErr != nil || !closeCleanly {
		_ = es.proc.Kill()
	}
	waitErr := es.proc.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if driveErr != nil {
		d.settle(es, driveErr, waitErr)
		return nil
	}
	if closeCleanly && waitErr != nil {
		d.record(epoch, report.KindError, "unclean worker exit", waitErr.Error())
	}
	return nil
}

func (d *Driver) record(epoch int, kind report.Kind, label, detail string) {
	d.results.Append(report.Result{
		Epoch:   epoch,
		Success: kind == report.KindVerified || kind == report.KindAdopted,
		Kind:    kind,
		Label:   label,
		Detail:  detail,
	})

	fields := []log.Field{log.Int("epoch", epoch), log.String("kind", string(kind))}
	if detail != "" {
		fields = append(fields, log.String("detail", detail))
	}
	switch {
	case kind.Fatal():
		d.logger.Error(label, fields...)
	case kind == report.KindAnomaly:
		d.logger.Warn(label, fields...)
	default:
		d.logger.Info(label, fields...)
	}
}

func (d *Driver) warmupCount() int {
	if d.cfg.MaxWarmupRequests == 0 {
		return 0
	}
	return d.rng.Intn(d.cfg.MaxWarmupRequests)
}

func (d *Driver) killDelay() time.Duration {
	if d.cfg.MaxKillDelay <= 0 {
		return 0
	}
	return time.Duration(d.rng.Int63n(int64(d.cfg.MaxKillDelay)))
}

func (d *Driver) pickWarmupOp() op {
	if d.rng.Intn(weightSet+weightGet) < weightSet {
		return opSet
	}
	return opGet
}

func (d *Driver) pickStressOp() op {
	n := d.rng.Intn(weightSet + weightFlush + weightGet)
	switch {
	case n < weightSet:
		return opSet
	case n < weightSet+weightFlush:
		return opFlush
	default:
		return opGet
	}
}

// randomRange picks a non-empty range of at most MaxWriteSize bytes.
func (d *Driver) randomRange() (int64, int) {
	capacity := d.cfg.Storage.MaxCapacity
	offset := d.rng.Intn(capacity)
	limit := capacity - offset
	if limit > d.cfg.MaxWriteSize {
		limit = d.cfg.MaxWriteSize
	}
	return int64(offset), 1 + d.rng.Intn(limit)
}

func (d *Driver) randomWrite() (int64, []byte) {
	offset, size := d.randomRange()
	data := make([]byte, size)
	d.rng.Read(data)
	return offset, data
}
