package profile

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store whenever its backing file changes. Blocks until
// ctx is cancelled. Must be called after a successful path based Load.
func (s *Store) Watch(ctx context.Context) error {
	s.mu.RLock()
	path := s.path
	s.mu.RUnlock()
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}
	s.logger.Info("watching profile file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := s.Load(path); err != nil {
					s.logger.Error("profile reload failed", "err", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("profile watcher error", "err", err)
		}
	}
}
