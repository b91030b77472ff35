package player

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// Handler returns an http.Handler that serves the player page.
//
// When dir is non-empty and the directory exists, assets are served from the
// filesystem, so the page can be edited without a rebuild. Otherwise the
// embedded copy is used.
//
// Unknown paths fall back to index.html with 200. The page reads the device
// ID from the last path segment, so /player/front-door is a deep link.
// Panics if the embedded assets cannot be loaded (build error).
func Handler(dir string) http.Handler {
	var fileSystem http.FileSystem

	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fileSystem = http.Dir(dir)
		}
	}

	if fileSystem == nil {
		webFS, err := fs.Sub(content, "web")
		if err != nil {
			panic(fmt.Sprintf("player: failed to load embedded assets: %v", err))
		}
		fileSystem = http.FS(webFS)
	}

	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		upath := path.Clean("/" + r.URL.Path)
		if upath == "/" || upath == "/index.html" {
			serveIndex(w, r, fileServer)
			return
		}

		f, err := fileSystem.Open(upath[1:])
		if err != nil {
			serveIndex(w, r, fileServer)
			return
		}
		stat, err := f.Stat()
		f.Close()
		if err != nil || stat.IsDir() {
			serveIndex(w, r, fileServer)
			return
		}

		fileServer.ServeHTTP(w, r)
	})
}

// serveIndex serves index.html without FileServer's redirect of
// "/index.html" to "/", which would lose the device segment.
func serveIndex(w http.ResponseWriter, r *http.Request, fileServer http.Handler) {
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/"
	fileServer.ServeHTTP(w, r2)
}
