// Package logging configures barshelf's structured slog output: JSON lines
// to stderr, and with --debug also to a size-rotated file under the XDG
// state directory.
package logging
