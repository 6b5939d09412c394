// Package vocab embeds the taxonomy versions shipped with the binary.
package vocab

import (
	"embed"
)

//go:embed all:default
var FS embed.FS

// DefaultEnv and DefaultVersion select the embedded taxonomy used when no
// taxonomy directory is configured.
const (
	DefaultEnv     = "default"
	DefaultVersion = "v1"
)
