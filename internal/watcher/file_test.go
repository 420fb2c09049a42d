package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]FileEvent
}

func (r *batchRecorder) record(_ context.Context, events []FileEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
}

func (r *batchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func runWatcher(t *testing.T, w *FileWatcher, rec *batchRecorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx, rec.record) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	require.Eventually(t, func() bool { return w.Mode() != "" }, time.Second, 5*time.Millisecond)
}

func TestFileWatcher_Polling(t *testing.T) {
	// Given: a CSV file watched by polling
	path := filepath.Join(t.TempDir(), "cocktails.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name\nNegroni\n"), 0o644))
	w := NewFileWatcher(path, Options{
		DebounceWindow: 20 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		ForcePolling:   true,
	}, nil)
	rec := &batchRecorder{}
	runWatcher(t, w, rec)
	assert.Equal(t, "polling", w.Mode())

	// When: the file grows
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("Name\nNegroni\nMargarita\n"), 0o644))

	// Then: one batch is delivered
	require.Eventually(t, func() bool { return rec.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_FsnotifyIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cocktails.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name\n"), 0o644))
	w := NewFileWatcher(path, Options{DebounceWindow: 20 * time.Millisecond}, nil)
	rec := &batchRecorder{}
	runWatcher(t, w, rec)
	if w.Mode() != "fsnotify" {
		t.Skip("fsnotify unavailable")
	}

	// When: a sibling file changes
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	// When: the watched file is replaced
	tmp := filepath.Join(dir, "cocktails.csv.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("Name\nNegroni\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	// Then: a batch arrives
	require.Eventually(t, func() bool { return rec.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDiff(t *testing.T) {
	now := time.Now()
	present := fileSnapshot{exists: true, modTime: now, size: 10}

	op, changed := diff(fileSnapshot{}, present)
	assert.True(t, changed)
	assert.Equal(t, OpCreate, op)

	op, changed = diff(present, fileSnapshot{})
	assert.True(t, changed)
	assert.Equal(t, OpDelete, op)

	_, changed = diff(present, present)
	assert.False(t, changed)

	op, changed = diff(present, fileSnapshot{exists: true, modTime: now, size: 11})
	assert.True(t, changed)
	assert.Equal(t, OpModify, op)
}

func TestTranslate(t *testing.T) {
	op, ok := translate(fsnotify.Write)
	assert.True(t, ok)
	assert.Equal(t, OpModify, op)

	_, ok = translate(fsnotify.Chmod)
	assert.False(t, ok)
}
