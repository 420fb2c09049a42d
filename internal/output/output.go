// Package output provides consistent CLI output formatting. Color is used
// only when writing to a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	styles   Styles
}

// New creates a Writer that colors output when out is a terminal.
func New(out io.Writer) *Writer {
	return NewWithColor(out, IsTerminal(out) && !NoColor())
}

// NewWithColor creates a Writer with color forced on or off.
func NewWithColor(out io.Writer, color bool) *Writer {
	w := &Writer{out: out, useColor: color, styles: PlainStyles()}
	if color {
		w.styles = DefaultStyles()
	}
	return w
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NoColor reports whether the NO_COLOR environment variable is set.
func NoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status("✅", w.styles.Success.Render(msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", w.styles.Warning.Render(msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", w.styles.Error.Render(msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Header prints a bold heading line.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
}

// KeyValues prints aligned label/value pairs. pairs alternates label and
// value; a trailing label without value is ignored.
func (w *Writer) KeyValues(pairs ...string) {
	width := 0
	for i := 0; i+1 < len(pairs); i += 2 {
		width = max(width, len(pairs[i]))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		label := fmt.Sprintf("%-*s", width+1, pairs[i]+":")
		_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.styles.Label.Render(label), pairs[i+1])
	}
}

// Tags renders a comma separated tag list.
func (w *Writer) Tags(tags []string) string {
	if len(tags) == 0 {
		return w.styles.Dim.Render("-")
	}
	styled := make([]string, len(tags))
	for i, t := range tags {
		styled[i] = w.styles.Tag.Render(t)
	}
	return strings.Join(styled, ", ")
}

// Dim renders s in the secondary color.
func (w *Writer) Dim(s string) string {
	return w.styles.Dim.Render(s)
}

// Panel prints content inside a rounded border when color is on, or
// indented otherwise.
func (w *Writer) Panel(content string) {
	if !w.useColor {
		w.Code(content)
		return
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Panel.Render(content))
}

// Code prints a block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
