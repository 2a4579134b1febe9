// Package watch runs auto-archive passes in the background: once on start,
// after tasks documents change, and on a cron schedule so that archival
// delays expire even when nothing is edited.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/felixgeelhaar/speckeeper/internal/completion"
	"github.com/felixgeelhaar/speckeeper/internal/log"
)

// Defaults for Config.
const (
	DefaultSchedule = "@every 5m"
	DefaultDebounce = 2 * time.Second
)

// Trigger says why a pass ran.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerChange   Trigger = "change"
	TriggerSchedule Trigger = "schedule"
)

// PassFunc performs one pass.
type PassFunc func(ctx context.Context, trigger Trigger) error

// Config configures a Daemon.
type Config struct {
	// SpecsDir is watched recursively. Hidden directories are skipped.
	SpecsDir string
	// Ignore lists directories that are never watched, such as the archive.
	Ignore []string
	// Schedule is a cron expression or descriptor.
	Schedule string
	Debounce time.Duration
}

// Stats describes the passes run so far.
type Stats struct {
	Passes      int       `json:"passes" yaml:"passes"`
	Failures    int       `json:"failures" yaml:"failures"`
	LastTrigger Trigger   `json:"lastTrigger,omitempty" yaml:"lastTrigger,omitempty"`
	LastRun     time.Time `json:"lastRun,omitempty" yaml:"lastRun,omitempty"`
	LastError   string    `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// Daemon serializes passes from every trigger source.
type Daemon struct {
	cfg      Config
	schedule cron.Schedule
	pass     PassFunc
	logger   *log.Logger

	passMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// New validates cfg and builds a daemon. Empty fields take the defaults.
func New(cfg Config, pass PassFunc, logger *log.Logger) (*Daemon, error) {
	if pass == nil {
		return nil, fmt.Errorf("watch: pass function is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid watch schedule %q: %w", cfg.Schedule, err)
	}
	ignore := make([]string, 0, len(cfg.Ignore))
	for _, dir := range cfg.Ignore {
		ignore = append(ignore, filepath.Clean(dir))
	}
	cfg.Ignore = ignore
	return &Daemon{
		cfg:      cfg,
		schedule: schedule,
		pass:     pass,
		logger:   log.OrDefault(logger).With("component", "watch"),
	}, nil
}

// NextRun returns when the schedule fires next after t.
func (d *Daemon) NextRun(t time.Time) time.Time {
	return d.schedule.Next(t)
}

// Stats returns a snapshot of the pass counters.
func (d *Daemon) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// RunPass runs one pass. Concurrent callers wait for each other.
func (d *Daemon) RunPass(ctx context.Context, trigger Trigger) error {
	d.passMu.Lock()
	defer d.passMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := d.pass(ctx, trigger)

	d.statsMu.Lock()
	d.stats.Passes++
	d.stats.LastTrigger = trigger
	d.stats.LastRun = start
	d.stats.LastError = ""
	if err != nil {
		d.stats.Failures++
		d.stats.LastError = err.Error()
	}
	d.statsMu.Unlock()

	if err != nil {
		d.logger.WithError(err).Warn("pass failed", "trigger", trigger)
		return err
	}
	d.logger.Debug("pass finished", "trigger", trigger, "duration", time.Since(start))
	return nil
}

// Run watches until ctx is cancelled. A pass runs immediately, then after
// each debounced burst of tasks document writes and on every schedule tick.
func (d *Daemon) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := d.addRecursive(watcher, d.cfg.SpecsDir); err != nil {
		return fmt.Errorf("watch %s: %w", d.cfg.SpecsDir, err)
	}

	deb := newDebouncer(d.cfg.Debounce, func() {
		_ = d.RunPass(ctx, TriggerChange)
	})
	defer deb.stop()

	c := cron.New()
	c.Schedule(d.schedule, cron.FuncJob(func() {
		_ = d.RunPass(ctx, TriggerSchedule)
	}))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	d.logger.Info("watching specs", "dir", d.cfg.SpecsDir, "schedule", d.cfg.Schedule, "debounce", d.cfg.Debounce)
	_ = d.RunPass(ctx, TriggerStartup)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			d.handleEvent(watcher, event, deb)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.LogError("watch error", err)

		case <-ctx.Done():
			d.logger.Info("watch stopped")
			return nil
		}
	}
}

func (d *Daemon) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, deb *debouncer) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := d.addRecursive(watcher, event.Name); err != nil {
				d.logger.WithError(err).Debug("could not watch new directory", "dir", event.Name)
			}
			return
		}
	}
	if !isTasksEvent(event) || d.ignored(event.Name) {
		return
	}
	d.logger.Debug("tasks document changed", "path", event.Name, "op", event.Op.String())
	deb.add()
}

// isTasksEvent reports whether event may have changed a tasks document.
func isTasksEvent(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != completion.TasksFile {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

func (d *Daemon) ignored(path string) bool {
	path = filepath.Clean(path)
	for _, dir := range d.cfg.Ignore {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (d *Daemon) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}
		if d.ignored(path) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// debouncer calls fire once a burst of add calls has been quiet for delay.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	fire    func()
	stopped bool
}

func newDebouncer(delay time.Duration, fire func()) *debouncer {
	return &debouncer{delay: delay, fire: fire}
}

func (d *debouncer) add() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
