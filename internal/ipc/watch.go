package ipc

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
)

// pollInterval backs up fsnotify on filesystems that drop events
const pollInterval = time.Second

// WatchCommands calls handle for every request dropped into the directory until ctx
// ends. Requests are handled one at a time in arrival order.
func (d Dir) WatchCommands(ctx context.Context, logger *zap.Logger, handle func(Request)) error {
	log := logging.Component(logger, "ipc")
	if err := d.Ensure(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify not available, falling back to polling", zap.Error(err))
		return d.pollCommands(ctx, handle)
	}
	defer watcher.Close()

	if err := watcher.Add(string(d)); err != nil {
		log.Warn("Cannot watch runtime directory, falling back to polling", zap.Error(err))
		return d.pollCommands(ctx, handle)
	}

	log.Debug("Command watcher started", zap.String(logging.KeyPath, string(d)))

	// a command written before the watcher started
	d.dispatch(log, handle)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return d.pollCommands(ctx, handle)
			}
			if event.Name == d.commandPath() && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				d.dispatch(log, handle)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return d.pollCommands(ctx, handle)
			}
			log.Warn("File watcher error", zap.Error(err))
		case <-ticker.C:
			d.dispatch(log, handle)
		}
	}
}

func (d Dir) pollCommands(ctx context.Context, handle func(Request)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.dispatch(zap.NewNop(), handle)
		}
	}
}

func (d Dir) dispatch(log *zap.Logger, handle func(Request)) {
	req, err := d.ReadCommand()
	if err != nil {
		log.Warn("Reading command failed", zap.Error(err))
		return
	}
	if req == nil {
		return
	}
	log.Info("Received command", zap.String("command", string(req.Command)), zap.String("id", req.ID))
	handle(*req)
}

// WaitStatus blocks until a published status satisfies match or ctx ends
func (d Dir) WaitStatus(ctx context.Context, match func(Status) bool) (Status, error) {
	if err := d.Ensure(); err != nil {
		return Status{}, err
	}

	check := func() (Status, bool) {
		st, err := d.ReadStatus()
		return st, err == nil && match(st)
	}

	var events chan fsnotify.Event
	if w, err := fsnotify.NewWatcher(); err == nil {
		defer w.Close()
		if w.Add(string(d)) == nil {
			events = w.Events
		}
	}

	if st, ok := check(); ok {
		return st, nil
	}

	ticker := time.NewTicker(pollInterval / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			st, _ := d.ReadStatus()
			return st, ctx.Err()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Name != d.statusPath() {
				continue
			}
		case <-ticker.C:
		}
		if st, ok := check(); ok {
			return st, nil
		}
	}
}
