package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// maxLineBytes bounds a single log line read by the viewer.
const maxLineBytes = 1 << 20

// LogEntry is one parsed JSON log line.
type LogEntry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs map[string]any
	// Raw is the original line; unparseable lines are shown as-is.
	Raw     string
	IsValid bool
}

// ViewerConfig configures the log viewer.
type ViewerConfig struct {
	// Level drops entries below this level.
	Level   string
	Pattern *regexp.Regexp
	NoColor bool
}

// Viewer reads, filters and formats log files written by Setup.
type Viewer struct {
	cfg    ViewerConfig
	out    io.Writer
	levels map[string]lipgloss.Style
}

// NewViewer creates a viewer writing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	v := &Viewer{cfg: cfg, out: out}
	if !cfg.NoColor {
		v.levels = map[string]lipgloss.Style{
			"DEBUG": lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
			"INFO":  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
			"WARN":  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
			"ERROR": lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		}
	}
	return v
}

// Tail returns the matching entries among the last n lines of path.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Ring of the last n lines.
	ring := make([]string, 0, max(n, 0))
	next := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) < n {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[next] = scanner.Text()
		next = (next + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	lines := make([]string, 0, len(ring))
	lines = append(lines, ring[next:]...)
	lines = append(lines, ring[:next]...)
	var entries []LogEntry
	for _, line := range lines {
		if e := v.parseLine(line); v.matches(e) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Follow sends entries appended to path until ctx is done.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				chunk, err := reader.ReadString('\n')
				partial += chunk
				if err != nil {
					// Incomplete line: keep it for the next tick.
					break
				}
				line := strings.TrimSuffix(partial, "\n")
				partial = ""
				if line == "" {
					continue
				}
				if e := v.parseLine(line); v.matches(e) {
					select {
					case entries <- e:
					case <-ctx.Done():
						return nil
					}
				}
			}
		}
	}
}

// Print writes entries to the viewer's output.
func (v *Viewer) Print(entries []LogEntry) {
	for _, e := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(e))
	}
}

// FormatEntry renders an entry as "15:04:05.000 LEVEL msg k=v ...", with
// attributes sorted by key.
func (v *Viewer) FormatEntry(e LogEntry) string {
	if !e.IsValid {
		return e.Raw
	}

	level := strings.ToUpper(e.Level)
	if len(level) > 5 {
		level = level[:5]
	}
	level = fmt.Sprintf("%-5s", level)
	if style, ok := v.levels[strings.TrimSpace(level)]; ok {
		level = style.Render(level)
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s", e.Time.Format("15:04:05.000"), level, e.Msg)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}

func (v *Viewer) parseLine(line string) LogEntry {
	e := LogEntry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return e
	}
	e.IsValid = true

	if t, ok := data[slog.TimeKey].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			e.Time = parsed
		}
	}
	e.Level, _ = data[slog.LevelKey].(string)
	e.Msg, _ = data[slog.MessageKey].(string)

	e.Attrs = make(map[string]any, len(data))
	for k, val := range data {
		switch k {
		case slog.TimeKey, slog.LevelKey, slog.MessageKey:
		default:
			e.Attrs[k] = val
		}
	}
	return e
}

func (v *Viewer) matches(e LogEntry) bool {
	if v.cfg.Level != "" && e.IsValid && ParseLevel(e.Level) < ParseLevel(v.cfg.Level) {
		return false
	}
	if v.cfg.Pattern != nil && !v.cfg.Pattern.MatchString(e.Raw) {
		return false
	}
	return true
}
