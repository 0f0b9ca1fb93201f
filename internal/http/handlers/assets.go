package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Frontend serves the static single-page frontend from dir. Unknown paths
// fall back to index.html so client-side routing works on reload.
func Frontend(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(r.URL.Path, "/")))
		if info, err := os.Stat(clean); err != nil || info.IsDir() {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
}
