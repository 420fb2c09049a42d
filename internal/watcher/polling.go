package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

func snapshot(path string) (fileSnapshot, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileSnapshot{}, nil
	}
	if err != nil {
		return fileSnapshot{}, err
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}, nil
}

// diff returns the operation that turns prev into cur, or false when the
// file is unchanged.
func diff(prev, cur fileSnapshot) (Operation, bool) {
	switch {
	case !prev.exists && cur.exists:
		return OpCreate, true
	case prev.exists && !cur.exists:
		return OpDelete, true
	case cur.exists && (!prev.modTime.Equal(cur.modTime) || prev.size != cur.size):
		return OpModify, true
	default:
		return 0, false
	}
}

// poll stats path every interval and reports differences through emit.
// Stat errors are passed to onErr and the previous snapshot is kept.
func poll(ctx context.Context, path string, interval time.Duration, emit func(FileEvent), onErr func(error)) error {
	prev, err := snapshot(path)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cur, err := snapshot(path)
			if err != nil {
				onErr(err)
				continue
			}
			if op, changed := diff(prev, cur); changed {
				emit(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
			}
			prev = cur
		}
	}
}
