package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"llmgate/internal/common/fsutil"
)

const watchDebounce = 100 * time.Millisecond

// Watch reloads path whenever it changes and passes the parsed Config to fn.
// The parent directory is watched so editors that replace the file on save
// are seen too. Bursts of events are collapsed into one reload. Files that
// fail to parse are logged and skipped. Blocks until ctx is done.
func Watch(ctx context.Context, path string, log zerolog.Logger, fn func(Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if !fsutil.PathExists(dir) {
		return fmt.Errorf("watch %s: %w", dir, os.ErrNotExist)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log = log.With().Str("component", "config").Str("path", abs).Logger()

	reload := func() {
		cfg, err := Load(abs)
		if err != nil {
			log.Warn().Err(err).Msg("config reload failed; keeping previous values")
			return
		}
		log.Info().Msg("config reloaded")
		fn(cfg)
	}

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(watchDebounce, reload)
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}
