// Package testserver serves static in-memory files over HTTP. It stands in
// for the page under test when exercising live content fetching.
package testserver

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/stackmap/pkg/content"
)

// File is one served resource.
type File struct {
	MIMEType string
	Data     []byte
	Headers  map[string]string
}

// Handler returns a router serving files by lower-cased request path. Paths
// not in files fall back to the "/" entry, then to 404.
func Handler(files map[string]File) http.Handler {
	index := make(map[string]File, len(files))
	for p, f := range files {
		index[strings.ToLower(p)] = f
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		f, ok := index[strings.ToLower(req.URL.Path)]
		if !ok {
			f, ok = index["/"]
		}
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", f.MIMEType)
		for k, v := range f.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(f.Data)
	})
	return r
}

// Start serves files on a loopback port until the returned server is closed.
func Start(files map[string]File) *httptest.Server {
	return httptest.NewServer(Handler(files))
}

// LoadDir reads every regular file under root into a file map keyed by its
// slash-separated path relative to root. index.html is also served at "/".
func LoadDir(root string) (map[string]File, error) {
	files := make(map[string]File)
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := "/" + filepath.ToSlash(rel)
		f := File{MIMEType: content.TypeByPath(key), Data: data}
		files[key] = f
		if key == "/index.html" {
			files["/"] = f
		}
		return nil
	})
	return files, err
}
