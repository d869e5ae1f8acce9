// Package ui embeds the browser dashboard and serves it next to the JSON API.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// APIPrefix is the path prefix routed to the JSON API.
const APIPrefix = "/api/"

// DistFS returns the embedded dist/ filesystem with the "dist" prefix stripped.
func DistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}

// dashboard serves embedded files. Extensionless paths are dashboard views
// (/issues, /board, /dashboard, /admin) and get index.html; a missing file
// with an extension is a 404.
type dashboard struct {
	files fs.FS
	fs    http.Handler
}

// Handler returns the embedded dashboard handler.
func Handler() (http.Handler, error) {
	sub, err := DistFS()
	if err != nil {
		return nil, err
	}
	return &dashboard{files: sub, fs: http.FileServerFS(sub)}, nil
}

func (d *dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")

	switch {
	case name == "" || name == "index.html":
		d.index(w, r)
	case d.exists(name):
		d.fs.ServeHTTP(w, r)
	case path.Ext(name) != "":
		http.NotFound(w, r)
	default:
		d.index(w, r)
	}
}

func (d *dashboard) exists(name string) bool {
	_, err := fs.Stat(d.files, name)
	return err == nil
}

// index serves index.html uncached so a new binary's dashboard is picked up
// on reload.
func (d *dashboard) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFileFS(w, r, d.files, "index.html")
}

// NewHandler serves api under APIPrefix and the dashboard everywhere else.
func NewHandler(api http.Handler) (http.Handler, error) {
	spa, err := Handler()
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(APIPrefix, api)
	mux.Handle("/", spa)
	return mux, nil
}
