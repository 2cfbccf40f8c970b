package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch re-parses the config file on change and calls onChange with each
// valid new config. Invalid edits are logged and skipped; the previous
// config stays in effect. Events are debounced because editors commonly
// emit several writes per save.
func Watch(ctx context.Context, path string, log zerolog.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: rename-and-replace saves would
	// otherwise drop the watch.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return err
	}
	log = log.With().Str("component", "config").Logger()

	go func() {
		defer w.Close()
		var debounce *time.Timer
		var debounceC <-chan time.Time
		base := filepath.Base(path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(300 * time.Millisecond)
					debounceC = debounce.C
				} else {
					debounce.Reset(300 * time.Millisecond)
				}
			case <-debounceC:
				debounce = nil
				debounceC = nil
				cfg, err := Load(path)
				if err != nil {
					log.Warn().Err(err).Msg("config reload rejected")
					continue
				}
				log.Info().Msg("config reloaded")
				onChange(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}
