package ui

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var assets embed.FS

// FS contains the room viewer assets.
var FS, _ = fs.Sub(assets, "dist")
