package dashboard

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

// Handler returns an http.Handler for the dashboard assets. A non-empty dir
// that exists on disk takes precedence over the embedded copy. Panics if the
// embedded assets cannot be loaded, which only happens on a broken build.
func Handler(dir string) http.Handler {
	fileSystem := diskOrEmbedded(dir)
	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		upath := path.Clean("/" + r.URL.Path)
		if upath == "/" {
			fileServer.ServeHTTP(w, r)
			return
		}

		f, err := fileSystem.Open(upath[1:])
		if err != nil {
			r.URL.Path = "/"
			fileServer.ServeHTTP(w, r)
			return
		}
		f.Close()

		fileServer.ServeHTTP(w, r)
	})
}

// Source reports which asset set Handler(dir) would serve: "disk" or
// "embedded".
func Source(dir string) string {
	if _, ok := diskOrEmbedded(dir).(http.Dir); ok {
		return "disk"
	}
	return "embedded"
}

func diskOrEmbedded(dir string) http.FileSystem {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return http.Dir(dir)
		}
	}

	webFS, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("dashboard: failed to load embedded web assets: %v", err))
	}
	return http.FS(webFS)
}
