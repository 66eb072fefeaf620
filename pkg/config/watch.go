package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads filename whenever it is written or replaced and passes the
// result to onChange. Each reload starts from a fresh value returned by
// defaults. Reload failures are passed to onError and the previous
// configuration stays in effect. Watch blocks until ctx is cancelled.
func Watch[T any](ctx context.Context, filename string, defaults func() *T, onChange func(*T), onError func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors often save by renaming a new file over
	// the old one, which drops a watch placed on the file itself.
	name := filepath.Clean(filename)
	if err := w.Add(filepath.Dir(name)); err != nil {
		return fmt.Errorf("config watch %s: %w", filename, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			next := defaults()
			if err := Load(filename, next); err != nil {
				onError(err)
				continue
			}
			onChange(next)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onError(fmt.Errorf("config watch: %w", err))
		}
	}
}
