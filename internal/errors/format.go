package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal output. Plain errors are
// wrapped as internal errors so every line carries a code.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var se *ShelfError
	if !errors.As(err, &se) {
		se = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", se.Message)
	if se.Suggestion != "" {
		fmt.Fprintf(&sb, "  Try: %s\n", se.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", se.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err, suitable for
// slog.Warn("event", errors.LogAttrs(err)...).
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var se *ShelfError
	if !errors.As(err, &se) {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error", se.Message),
		slog.String("code", se.Code),
		slog.String("category", string(se.Category)),
	}

	keys := make([]string, 0, len(se.Details))
	for k := range se.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, se.Details[k]))
	}

	if se.Cause != nil && se.Cause.Error() != se.Message {
		attrs = append(attrs, slog.String("cause", se.Cause.Error()))
	}
	return attrs
}
