package config

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
)

// Supervisor owns the live client configuration. Readers call Config to get
// an immutable snapshot; the snapshot is swapped atomically when the backing
// file changes, so a reader never observes a half-updated configuration and
// never blocks a reload.
type Supervisor struct {
	log  slog.Logger
	path string

	current atomic.Pointer[Client]
}

// NewSupervisor loads the configuration at path. The initial load must
// succeed; later reloads are allowed to fail without replacing the active
// configuration.
func NewSupervisor(logger slog.Logger, path string) (*Supervisor, error) {
	cfg, err := LoadClient(path)
	if err != nil {
		return nil, xerrors.Errorf("load initial config: %w", err)
	}
	s := &Supervisor{
		log:  logger.Named("config"),
		path: filepath.Clean(path),
	}
	s.current.Store(cfg)
	return s, nil
}

// Config returns the current configuration snapshot. The returned value must
// be treated as immutable.
func (s *Supervisor) Config() *Client {
	return s.current.Load()
}

// Watch reloads the configuration whenever the backing file changes, until
// ctx is canceled. A malformed or invalid update is rejected and the
// previous configuration stays in effect.
func (s *Supervisor) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return xerrors.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file itself. Most editors and
	// config management tools replace files via rename, which would
	// otherwise drop the watch.
	err = watcher.Add(filepath.Dir(s.path))
	if err != nil {
		return xerrors.Errorf("watch %q: %w", filepath.Dir(s.path), err)
	}
	s.log.Debug(ctx, "watching configuration file", slog.F("path", s.path))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			s.reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn(ctx, "error watching configuration file", slog.Error(err))
		}
	}
}

func (s *Supervisor) reload(ctx context.Context) {
	cfg, err := LoadClient(s.path)
	if err != nil {
		s.log.Error(ctx, "configuration update rejected, keeping previous configuration", slog.Error(err))
		return
	}
	s.current.Store(cfg)
	s.log.Info(ctx, "configuration reloaded",
		slog.F("minimum_duration", cfg.MinimumSessionDuration()),
		slog.F("monitored_roots", len(cfg.Monitor)),
	)
}
