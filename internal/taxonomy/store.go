package taxonomy

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 200 * time.Millisecond

// Store serves the current taxonomy version. Requests take one snapshot
// with Current and use it end to end; a reload swaps the pointer and never
// mutates a published Version.
type Store struct {
	fsys    fs.FS
	dir     string
	env     string
	version string
	logger  *slog.Logger

	current  atomic.Pointer[Version]
	reloads  atomic.Int64
	onReload func(*Version)
}

// NewStore loads env/version from fsys. dir is the on-disk root behind fsys
// and is only needed for Watch; pass "" for embedded data.
func NewStore(fsys fs.FS, dir, env, version string, logger *slog.Logger) (*Store, error) {
	s := &Store{fsys: fsys, dir: dir, env: env, version: version, logger: logger}
	v, err := Load(fsys, env, version)
	if err != nil {
		return nil, err
	}
	s.current.Store(v)
	return s, nil
}

// Current returns the active snapshot.
func (s *Store) Current() *Version { return s.current.Load() }

// OnReload registers fn to run after every successful reload. Call it
// before Watch.
func (s *Store) OnReload(fn func(*Version)) { s.onReload = fn }

// Reloads counts successful reloads since the store was created.
func (s *Store) Reloads() int64 { return s.reloads.Load() }

// Reload loads the version again. On failure the previous snapshot stays
// active and the error is returned.
func (s *Store) Reload() error {
	v, err := Load(s.fsys, s.env, s.version)
	if err != nil {
		return err
	}
	prev := s.current.Swap(v)
	s.reloads.Add(1)
	if prev == nil || prev.Digest != v.Digest {
		s.logger.Info("taxonomy reloaded", "id", v.ID())
	}
	if s.onReload != nil {
		s.onReload(v)
	}
	return nil
}

// Watch reloads the version whenever its files change. Blocks until ctx is
// cancelled.
func (s *Store) Watch(ctx context.Context) error {
	if s.dir == "" {
		return fmt.Errorf("taxonomy watch: no directory configured")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("taxonomy watch: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	root := filepath.Join(s.dir, s.env, s.version)
	for _, d := range []string{root, filepath.Join(root, "lexicons"), filepath.Join(root, "examples")} {
		if _, err := os.Stat(d); err != nil {
			continue
		}
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("taxonomy watch %s: %w", d, err)
		}
	}

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			timer.Reset(reloadDelay)
		case <-timer.C:
			if err := s.Reload(); err != nil {
				s.logger.Error("taxonomy reload rejected, keeping previous version", "id", s.Current().ID(), "err", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("taxonomy watcher error", "err", err)
		}
	}
}
