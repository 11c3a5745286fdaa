// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Change describes one successful reload.
type Change struct {
	Old      *Config
	New      *Config
	Sections []string
}

// Has reports whether section (a top level key such as "log") changed.
func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// Diff lists the top level sections that differ between a and b.
func Diff(a, b *Config) []string {
	if a == nil || b == nil {
		return nil
	}
	var out []string
	add := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	add("log", a.Log != b.Log)
	add("llm", a.LLM != b.LLM)
	add("pipeline", a.Pipeline != b.Pipeline)
	add("session", a.Session != b.Session)
	add("audit", a.Audit != b.Audit)
	add("guardrails", a.Guard != b.Guard)
	add("telemetry", a.Telemetry != b.Telemetry)
	add("server", a.Server != b.Server)
	return out
}

type fileStamp struct {
	mod  time.Time
	size int64
}

// Watcher polls configuration files and reloads them when one of them is
// touched. Handlers only run when the reloaded configuration differs.
type Watcher struct {
	mu       sync.Mutex
	stamps   map[string]fileStamp
	paths    []string
	current  *Config
	handlers []func(Change)

	interval time.Duration
	load     func() (*Config, error)
	profile  string
	logger   *slog.Logger

	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithLoader replaces the function used to build the configuration, so
// command line overrides survive a reload.
func WithLoader(load func() (*Config, error)) WatcherOption {
	return func(w *Watcher) {
		w.load = load
	}
}

func withProfile(profile string) WatcherOption {
	return func(w *Watcher) {
		w.profile = profile
	}
}

// NewWatcher loads the configuration once and prepares to watch paths.
// The first path is the base file.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		stamps:   make(map[string]fileStamp),
		paths:    paths,
		interval: time.Second,
		logger:   slog.Default(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.load == nil {
		base := ""
		if len(paths) > 0 {
			base = paths[0]
		}
		w.load = func() (*Config, error) { return LoadWithProfile(base, w.profile) }
	}

	w.touched()
	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	w.current = cfg
	return w, nil
}

// OnChange registers fn to run after every reload that changed something.
func (w *Watcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, fn)
}

// Config returns the configuration in effect.
func (w *Watcher) Config() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start begins polling in the background.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() { go w.run(ctx) })
}

// Stop ends polling and waits for the loop to exit. It is safe to call
// more than once, and on a watcher that was never started.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.startOnce.Do(func() { close(w.done) })
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if w.touched() {
				w.Reload()
			}
		}
	}
}

// touched records the current stamp of every path and reports whether
// any of them differs from the last poll. Missing files are skipped.
func (w *Watcher) touched() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := false
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		stamp := fileStamp{mod: info.ModTime(), size: info.Size()}
		if prev, ok := w.stamps[path]; !ok || prev != stamp {
			w.stamps[path] = stamp
			changed = true
		}
	}
	return changed
}

// Reload rebuilds the configuration now. A file that no longer parses or
// validates is logged and the previous configuration stays in effect.
func (w *Watcher) Reload() {
	cfg, err := w.load()
	if err != nil {
		w.logger.Error("config reload failed, keeping previous settings", "error", err)
		return
	}

	w.mu.Lock()
	change := Change{Old: w.current, New: cfg, Sections: Diff(w.current, cfg)}
	w.current = cfg
	handlers := append([]func(Change){}, w.handlers...)
	w.mu.Unlock()

	if len(change.Sections) == 0 {
		w.logger.Debug("config file touched without changes")
		return
	}
	w.logger.Info("config reloaded", "sections", change.Sections)
	for _, fn := range handlers {
		fn(change)
	}
}

// WatchProfile watches a base file plus its profile overlay and starts
// polling. An empty configPath watches nothing but still returns the
// loaded configuration.
func WatchProfile(ctx context.Context, configPath, profile string, opts ...WatcherOption) (*Watcher, *Config, error) {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
		if p := profileConfigPath(configPath, profile); p != "" {
			paths = append(paths, p)
		}
	}

	w, err := NewWatcher(paths, append([]WatcherOption{withProfile(profile)}, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	w.Start(ctx)
	return w, w.Config(), nil
}
