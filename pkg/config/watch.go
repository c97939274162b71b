package config

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/fsnotify.v1"
)

// Watch reloads the config at path whenever it is written or replaced and
// passes each successful load to onChange. A config that fails to load is
// logged and skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, fs afero.Fs, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	// watch the directory so editors that replace the file are still seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	target := filepath.Clean(path)
	logger := zerolog.Ctx(ctx).With().Str("config", target).Logger()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cfg, err := Load(fs, path)
			if err != nil {
				logger.Warn().Err(err).Msg("ignoring invalid config change")
				continue
			}
			logger.Info().Msg("config reloaded")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("config watcher error")
		}
	}
}
