package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/model"
)

// WatchCatalogFile calls onChange with the freshly parsed catalog whenever the
// file is written. Parse errors are logged and the change is ignored.
// The watcher stops when ctx is done.
//
//nolint:gocognit // by design
func WatchCatalogFile(
	ctx context.Context,
	path string,
	onChange func([]model.TrackGeometry),
) error {
	logger := log.GetFromContext(ctx).Named("catalog.watch")
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// watch the directory, editors often replace the file instead of writing it
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				logger.Info("context done, stopping catalog watch")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				logger.Debug("change detected",
					log.String("file", event.Name), log.Stringer("op", event.Op))
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				tracks, err := LoadCatalogFile(abs)
				if err != nil {
					logger.Error("could not reload catalog", log.ErrorField(err))
					continue
				}
				logger.Info("catalog file changed",
					log.String("file", abs), log.Int("tracks", len(tracks)))
				onChange(tracks)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", log.ErrorField(err))
			}
		}
	}()
	return nil
}
