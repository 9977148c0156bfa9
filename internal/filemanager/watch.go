package filemanager

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
)

// WatchRecordings prunes index entries whose files are removed or renamed away from the
// output directory by other programs. It blocks until ctx ends.
func (m *Manager) WatchRecordings(ctx context.Context) error {
	if m.index == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.cfg.OutputDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", m.cfg.OutputDir, err)
	}

	m.logger.Debug("Watching recordings directory", zap.String(logging.KeyPath, m.cfg.OutputDir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			n, err := m.index.DeleteByPath(ctx, event.Name)
			if err != nil {
				m.logger.Warn("Failed to prune recordings index", zap.String(logging.KeyPath, event.Name), zap.Error(err))
				continue
			}
			if n > 0 {
				m.logger.Info("Recording removed externally", zap.String(logging.KeyPath, event.Name))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("Recordings watcher error", zap.Error(err))
		}
	}
}
