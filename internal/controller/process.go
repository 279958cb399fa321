package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/bft-labs/crashprobe/internal/storage"
)

// Process is a running worker seen from the controller.
type Process interface {
	// Stdin carries requests to the worker.
	Stdin() io.Writer
	// Stdout carries responses from the worker.
	Stdout() io.Reader
	// Kill terminates the worker immediately, without a Close request.
	Kill() error
	// Wait blocks until the worker has exited and returns its exit error.
	Wait() error
}

// Spawner starts one worker per epoch.
type Spawner interface {
	Spawn(ctx context.Context, epoch int) (Process, error)
}

// ExecSpawner runs workers as child processes.
type ExecSpawner struct {
	Path   string
	Args   []string
	Env    []string
	Stderr io.Writer
}

// NewExecSpawner re-executes the current binary as
// "worker --backend <kind> --data-dir <dir>" with the storage configuration
// exported in its environment. Worker logs go to the controller's stderr.
func NewExecSpawner(kind storage.Kind, dataDir string, cfg storage.Config) (*ExecSpawner, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &ExecSpawner{
		Path:   path,
		Args:   []string{"worker", "--backend", string(kind), "--data-dir", dataDir},
		Env:    cfg.Env(),
		Stderr: os.Stderr,
	}, nil
}

// Spawn starts a worker connected through two dedicated pipes. The parent's
// copies of the child ends are closed, so a dead worker shows up as EOF on
// Stdout and EPIPE on Stdin.
func (s *ExecSpawner) Spawn(ctx context.Context, epoch int) (Process, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return nil, err
	}

	cmd := exec.CommandContext(ctx, s.Path, s.Args...)
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = s.Stderr
	cmd.Env = append(os.Environ(), s.Env...)

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{inR, inW, outR, outW} {
			f.Close()
		}
		return nil, fmt.Errorf("start worker: %w", err)
	}
	inR.Close()
	outW.Close()

	return &execProcess{cmd: cmd, stdin: inW, stdout: outR}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File

	waitOnce sync.Once
	waitErr  error
}

func (p *execProcess) Stdin() io.Writer  { return p.stdin }
func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.stdin.Close()
		p.stdout.Close()
	})
	return p.waitErr
}
