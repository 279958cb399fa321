// Package guard watches a backend's data directory while a run is in
// progress. Only the live worker may touch the data files; the guard counts
// their writes and flags any removal or rename, after which recovery would
// read a different file than the one the previous worker wrote.
package guard

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/crashprobe/pkg/log"
)

// Violation is a removal or rename of a watched file.
type Violation struct {
	File string
	Op   string
	At   time.Time
}

// Guard monitors a fixed set of files inside one directory via fsnotify.
type Guard struct {
	dir    string
	files  map[string]bool
	logger log.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu         sync.Mutex
	writes     map[string]int
	violations []Violation
}

// New creates a guard for the named files (base names) inside dir.
func New(dir string, files []string, logger log.Logger) *Guard {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f] = true
	}
	return &Guard{
		dir:    dir,
		files:  set,
		logger: logger,
		writes: make(map[string]int),
	}
}

// Start begins watching. The directory must exist.
func (g *Guard) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(g.dir); err != nil {
		watcher.Close()
		return err
	}
	g.watcher = watcher
	g.done = make(chan struct{})
	go g.run()
	return nil
}

// Stop ends watching and waits for the event loop to exit. Safe to call on a
// guard that never started.
func (g *Guard) Stop() {
	if g.watcher == nil {
		return
	}
	g.watcher.Close()
	<-g.done
	g.watcher = nil
}

func (g *Guard) run() {
	defer close(g.done)
	for {
		select {
		case event, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			g.handle(event)
		case err, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			g.logger.Warn("data dir watcher error", log.Err(err))
		}
	}
}

func (g *Guard) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !g.files[name] {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if event.Has(fsnotify.Write) {
		g.writes[name]++
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		v := Violation{File: name, Op: event.Op.String(), At: time.Now()}
		g.violations = append(g.violations, v)
		g.logger.Warn("data file removed or renamed during run",
			log.String("file", name),
			log.String("op", v.Op),
		)
	}
}

// Writes returns the number of write events seen for a file. Stores through
// a shared mapping do not produce write events.
func (g *Guard) Writes(file string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writes[file]
}

// Violations returns the removals and renames seen so far.
func (g *Guard) Violations() []Violation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Violation{}, g.violations...)
}
