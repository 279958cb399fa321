package controller

import (
	"sync"
	"sync/atomic"
	"time"
)

// killer is the lazily started kill task of a stress phase. Its goroutine
// blocks until Start, sleeps the pre-drawn delay and kills the process.
// The sleep is a plain time.Sleep so the kill can land while the controller
// is blocked in a pipe read or write.
type killer struct {
	proc  Process
	delay time.Duration

	start     chan struct{}
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	started atomic.Bool
	fired   atomic.Bool
	killErr error
}

func newKiller(proc Process, delay time.Duration) *killer {
	k := &killer{
		proc:  proc,
		delay: delay,
		start: make(chan struct{}),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go k.run()
	return k
}

func (k *killer) run() {
	defer close(k.done)

	select {
	case <-k.start:
	case <-k.stop:
		// Start wins if both were signalled.
		select {
		case <-k.start:
		default:
			return
		}
	}

	time.Sleep(k.delay)
	k.killErr = k.proc.Kill()
	k.fired.Store(true)
}

// Start triggers the kill. Calls after the first are no-ops.
func (k *killer) Start() {
	k.startOnce.Do(func() {
		k.started.Store(true)
		close(k.start)
	})
}

// Stop releases an unstarted killer, or waits for a started one to fire.
// After Stop returns, Fired is final.
func (k *killer) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
	<-k.done
}

func (k *killer) Started() bool { return k.started.Load() }
func (k *killer) Fired() bool   { return k.fired.Load() }

// Err returns the kill error. Only meaningful after Stop.
func (k *killer) Err() error { return k.killErr }

// Delay returns the pre-drawn sleep before the kill.
func (k *killer) Delay() time.Duration { return k.delay }
