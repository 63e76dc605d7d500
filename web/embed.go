// Package web embeds the capture page: the script that hands the device
// camera to the server and shows lookup results as they arrive.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
)

//go:embed static
var page embed.FS

// Static returns the capture page files, rooted so that index.html is served
// at "/".
func Static() fs.FS {
	sub, err := fs.Sub(page, "static")
	if err != nil {
		slog.Error("web: capture page", "error", err)
	}
	return sub
}
