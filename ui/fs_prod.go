//go:build !debug

package ui

import (
	"embed"
	"io/fs"
)

//go:embed templates static
var files embed.FS

// FS returns the embedded UI filesystem (production: baked into binary).
func FS() fs.FS {
	return files
}
