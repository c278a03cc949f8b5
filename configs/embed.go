// Package configs embeds the configuration templates written by
// `batchidx config init`.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .batchidx.yaml in the project directory.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate is written to the user config path with --user.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
