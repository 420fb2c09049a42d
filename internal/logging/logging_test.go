package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath_UnderStateDir(t *testing.T) {
	path := DefaultLogPath()

	assert.True(t, strings.HasSuffix(path, filepath.Join("barshelf", "logs", "server.log")))
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, DefaultLogPath(), cfg.FilePath)
	assert.Empty(t, DefaultConfig().FilePath)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetup_StderrOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := setup(Config{Level: "warn"}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("dropped")
	logger.Warn("catalog_persist_failed", slog.String("key", "catalog:v1"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "catalog_persist_failed", entry["msg"])
	assert.Equal(t, "catalog:v1", entry["key"])
}

func TestSetup_FileAndStderr(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	logger, cleanup, err := setup(Config{Level: "debug", FilePath: path, WriteToStderr: true}, &buf)
	require.NoError(t, err)

	logger.Debug("rebuild_started")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rebuild_started")
	assert.Contains(t, string(data), `"pid"`)
	assert.Contains(t, buf.String(), "rebuild_started")
}

func TestFindLogFile(t *testing.T) {
	_, err := FindLogFile(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	got, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestRotatingWriter_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 4; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}

	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "server.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, w.Close())
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 10, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = fmt.Fprintf(w, "line %d\n", i)
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 20)
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}
