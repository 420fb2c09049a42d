// Package configs provides the embedded configuration template for barshelf.
//
// The template is embedded at build time so `barshelf config init` works
// from any distribution. It is written to the user config path
// ($XDG_CONFIG_HOME/barshelf/config.yaml) or, with --project, to
// barshelf.yaml in the current directory.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (internal/config NewConfig)
//  2. User config ($XDG_CONFIG_HOME/barshelf/config.yaml)
//  3. Project config (barshelf.yaml)
//  4. Environment variables (BARSHELF_*)
package configs

import _ "embed"

// ConfigTemplate is the commented example configuration.
//
//go:embed config.example.yaml
var ConfigTemplate string
