package intent

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchRuleFile reloads the matcher whenever the rules file changes on disk,
// so operators can tune vocabulary without restarting the gateway. Watches
// the parent directory because editors replace files on save instead of
// writing in place. The watcher goroutine exits when ctx is cancelled.
func WatchRuleFile(ctx context.Context, path string, m *Matcher) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	log := zap.L().With(zap.String("rules_file", path))

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				rules, err := LoadRuleFile(path)
				if err != nil {
					log.Warn("Rules reload failed, keeping previous table", zap.Error(err))
					continue
				}
				m.Reload(rules)
				log.Info("Rules reloaded", zap.Int("overrides", len(rules)))
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("Rules watcher error", zap.Error(werr))
			}
		}
	}()
	return nil
}
