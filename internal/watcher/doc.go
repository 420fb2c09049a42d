// Package watcher reports changes to a single local file, such as the CSV
// export used as a development catalog source.
//
// fsnotify is used when available. The parent directory is watched rather
// than the file itself so editors that save by rename-and-replace are still
// seen. Polling is the fallback for filesystems where fsnotify fails
// (network mounts, some container volumes).
//
// Events are debounced so a burst of writes produces one callback:
//
//	w := watcher.NewFileWatcher(path, watcher.DefaultOptions(), logger)
//	err := w.Run(ctx, func(ctx context.Context, events []watcher.FileEvent) {
//	    _, _ = loader.Get(ctx, true)
//	})
package watcher
