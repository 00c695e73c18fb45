package schedule

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Source hands out the schedule currently in force. Implementations are safe for concurrent use.
type Source interface {
	Current() Week
}

type Static Week

func (s Static) Current() Week {
	return Week(s)
}

// FileSource serves a schedule file and swaps in new contents when the file changes.
// An invalid edit is logged and the previous schedule stays in force.
type FileSource struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Week]
	// debounce collapses the burst of events editors produce for one save.
	debounce time.Duration
	// reloaded, when set before Watch starts, is told about each successful reload.
	reloaded chan<- Week
}

func NewFileSource(path string, logger *slog.Logger) (*FileSource, error) {
	w, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := &FileSource{path: path, logger: logger, debounce: 200 * time.Millisecond}
	s.current.Store(&w)
	return s, nil
}

func (s *FileSource) Current() Week {
	return *s.current.Load()
}

// Reload re-reads the file now.
func (s *FileSource) Reload() error {
	w, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	s.current.Store(&w)
	if s.reloaded != nil {
		select {
		case s.reloaded <- w:
		default:
		}
	}
	return nil
}

// Watch reloads the file on change until ctx is done. The parent directory is watched so
// atomic rename-into-place saves are seen too.
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(s.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := s.Reload(); err != nil {
				s.logger.Error("schedule reload failed; keeping previous schedule", "path", s.path, "err", err)
				continue
			}
			s.logger.Info("schedule reloaded", "path", s.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("schedule watcher error", "err", err)
		}
	}
}
