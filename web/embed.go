// Package web embeds the console frontend (dist/) and serves it as a
// single-page application.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const (
	pageCacheControl  = "no-cache"
	assetCacheControl = "public, max-age=3600"
)

// SPAHandler serves the embedded console. Known assets are served from dist/;
// any other path gets index.html so the page can pick the auth or chat view.
// Paths under /api/ and /ws/ never fall back to the page.
func SPAHandler() http.Handler {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return &spa{files: sub, server: http.FileServer(http.FS(sub))}
}

type spa struct {
	files  fs.FS
	server http.Handler
}

func (s *spa) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws/") {
		http.NotFound(w, r)
		return
	}

	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name != "" && name != "index.html" && s.exists(name) {
		w.Header().Set("Cache-Control", assetCacheControl)
		s.server.ServeHTTP(w, r)
		return
	}

	w.Header().Set("Cache-Control", pageCacheControl)
	r.URL.Path = "/"
	s.server.ServeHTTP(w, r)
}

func (s *spa) exists(name string) bool {
	info, err := fs.Stat(s.files, name)
	return err == nil && !info.IsDir()
}
