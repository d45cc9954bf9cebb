// Package content provides access to the resources a page loaded, as they
// were served to it. The source map cache reads generated scripts and HTML
// documents through the [Store] interface.
//
// Implementations:
//   - [Memory]: an in-process stash, loadable from a JSON dump
//   - [Dir]: files under a local directory, addressed by URL path
//   - [HTTP]: live fetches with retry and an optional disk cache
//   - [Redis]: a stash written into Redis hashes by the page driver
package content

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when a resource was never observed.
	ErrNotFound = errors.New("resource not found")

	// ErrFetch is returned when a resource exists but could not be read.
	ErrFetch = errors.New("fetch error")
)

// MIME types for the two resource kinds the cache distinguishes.
const (
	MIMEJavaScript = "text/javascript"
	MIMEHTML       = "text/html"
)

// Resource is the body of one URL as served to the page.
type Resource struct {
	URL      string
	MIMEType string
	Data     []byte
}

// IsScript reports whether the resource was served as JavaScript.
func (r *Resource) IsScript() bool {
	return IsScriptType(r.MIMEType)
}

// Kind returns [MIMEJavaScript] for scripts and [MIMEHTML] for everything
// else, matching how source files are tagged in results.
func (r *Resource) Kind() string {
	if r.IsScript() {
		return MIMEJavaScript
	}
	return MIMEHTML
}

// Store retrieves resource content by absolute URL.
// Errors wrap [ErrNotFound] or [ErrFetch].
type Store interface {
	Get(ctx context.Context, url string) (*Resource, error)
}

// IsScriptType reports whether a Content-Type value denotes JavaScript.
func IsScriptType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "text/javascript", "application/javascript", "application/x-javascript",
		"application/ecmascript", "text/ecmascript", "text/jscript", "module":
		return true
	}
	return false
}

// TypeByPath guesses a MIME type from a file or URL path extension.
func TypeByPath(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs", ".cjs":
		return MIMEJavaScript
	case ".html", ".htm", "":
		return MIMEHTML
	}
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}
