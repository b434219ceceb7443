package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"iot-notification-service/internal/infrastructure/logger"
)

// Watch reloads path whenever it is written and passes each valid result to
// onChange. An invalid file is logged and the previous config stays in use.
// Watch returns when ctx is done.
func Watch(ctx context.Context, path string, log logger.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log = log.WithFields(logger.Fields{"component": "config", "path": path})
	log.Info("Watching config file for changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors that save atomically produce Create instead of Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				log.Warnf("Config reload failed, keeping previous config: %v", err)
				continue
			}

			log.Info("Config reloaded")
			onChange(cfg)

			// The inode changes on atomic saves.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("Config watcher error: %v", err)
		}
	}
}
