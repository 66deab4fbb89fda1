// Package resources provides static asset handling for the UI server.
package resources

import (
	"io/fs"
	"net/http"
)

// StaticDirectoryPath is the path to static assets from the project root.
const StaticDirectoryPath = "internal/ui/resources/static"

// IndexFile is the editor page served at the root.
const IndexFile = "index.html"

// Index serves the editor page.
func Index(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(staticFiles(), IndexFile)
	if err != nil {
		http.Error(w, "editor page not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

// StaticPath returns the URL path for a static asset.
func StaticPath(path string) string {
	return "/static/" + path
}
