/*
Copyright © 2025 esmdev contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package watch implements the recursive filesystem watcher (C5): it emits
// one change/unlink event per changed path once a single debounce window,
// shared by all paths, has passed without a new event, excluding
// node_modules/.git plus configurable glob and .gitignore excludes.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
)

// EventKind distinguishes a modification from a deletion, per spec.md
// 4.5's change(path)/unlink(path) handlers.
type EventKind int

const (
	EventChange EventKind = iota
	EventUnlink
)

// Event is a single, debounced per-path filesystem notification.
type Event struct {
	Path string // absolute filesystem path
	Kind EventKind
}

// Logger is the narrow logging surface the watcher needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

var defaultIgnoredDirs = []string{".git", "node_modules", "dist", "build", ".cache"}

// Watcher wraps fsnotify with one shared debounce timer and
// glob/.gitignore-aware exclusion, adapted from serve/filewatcher.go's
// debounce timer idiom but generalized to emit, when the timer fires, one
// event per distinct pending path (spec.md's change/unlink handoff is
// per-path, not a single batched event).
type Watcher struct {
	fsw    *fsnotify.Watcher
	events chan Event
	logger Logger

	debounceWindow time.Duration
	ignoreGlobs    []string
	gitignore      *gitignore.GitIgnore

	mu      sync.Mutex
	pending map[string]fsnotify.Op
	timer   *time.Timer
	done    chan struct{}
	closed  bool
}

// New creates a Watcher. ignoreGlobs are doublestar patterns (e.g.
// "**/*.log"), in addition to the fixed defaultIgnoredDirs list; during
// Watch's directory walk they are matched against paths relative to the
// watched root, while incoming change events are matched by their absolute
// path. A root-level .gitignore, if present, is loaded and layered on top.
func New(root string, debounceWindow time.Duration, ignoreGlobs []string, logger Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:            fsw,
		events:         make(chan Event, 256),
		logger:         logger,
		debounceWindow: debounceWindow,
		ignoreGlobs:    ignoreGlobs,
		pending:        make(map[string]fsnotify.Op),
		done:           make(chan struct{}),
	}

	if gi, err := gitignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		w.gitignore = gi
	}

	go w.loop()

	return w, nil
}

// Watch recursively registers root and its subdirectories, skipping
// ignored directories during the walk.
func (w *Watcher) Watch(root string) error {
	if err := w.fsw.Add(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p == root {
			return nil
		}
		if w.shouldIgnore(root, p) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func (w *Watcher) Events() <-chan Event { return w.events }

func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	close(w.done)
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.shouldIgnore("", ev.Name) {
				continue
			}
			w.schedule(ev.Name, ev.Op)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Error("watcher error: %v", err)
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) schedule(path string, op fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[path] |= op
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceWindow, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	for path, op := range pending {
		kind := EventChange
		if op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			kind = EventUnlink
		}
		select {
		case w.events <- Event{Path: path, Kind: kind}:
		case <-w.done:
			return
		default:
			if w.logger != nil {
				w.logger.Debug("dropped watch event for %s (channel full)", path)
			}
		}
	}
}

func (w *Watcher) shouldIgnore(root, p string) bool {
	base := filepath.Base(p)
	parts := []string{base}
	if root != "" {
		if r, err := filepath.Rel(root, p); err == nil {
			parts = strings.Split(filepath.ToSlash(r), "/")
		}
	}
	for _, part := range parts {
		for _, dir := range defaultIgnoredDirs {
			if part == dir {
				return true
			}
		}
	}
	if isEditorTempFile(base) {
		return true
	}
	if len(w.ignoreGlobs) > 0 {
		rel := p
		if root != "" {
			if r, err := filepath.Rel(root, p); err == nil {
				rel = r
			}
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range w.ignoreGlobs {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return true
			}
		}
	}
	if w.gitignore != nil && w.gitignore.MatchesPath(p) {
		return true
	}
	return false
}

func isEditorTempFile(base string) bool {
	switch {
	case strings.HasSuffix(base, ".swp"), strings.HasSuffix(base, ".swo"), strings.HasSuffix(base, ".swn"):
		return strings.HasPrefix(base, ".")
	case strings.HasSuffix(base, "~"):
		return true
	case strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	case strings.HasPrefix(base, ".#"):
		return true
	}
	if base != "" && isAllDigits(base) {
		return true
	}
	return false
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
