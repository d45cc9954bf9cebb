package errors

import (
	"net/url"
	"strings"
	"unicode"
)

// ValidateBaseURL validates the page URL that relative frame files are
// resolved against. It must be an absolute http or https URL.
func ValidateBaseURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidURL, "base URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Wrap(ErrCodeInvalidURL, err, "invalid base URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return New(ErrCodeInvalidURL, "base URL must use http or https scheme: %q", rawURL)
	}
	if u.Host == "" {
		return New(ErrCodeInvalidURL, "base URL has no host: %q", rawURL)
	}
	return nil
}

// ValidateResourceURL checks that a source map cache key is an absolute URL
// without control characters. Any scheme is accepted.
func ValidateResourceURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidURL, "resource URL cannot be empty")
	}
	for _, r := range rawURL {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidURL, "resource URL contains control characters")
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Wrap(ErrCodeInvalidURL, err, "invalid resource URL %q", rawURL)
	}
	if !u.IsAbs() {
		return New(ErrCodeInvalidURL, "resource URL must be absolute: %q", rawURL)
	}
	return nil
}

// ValidatePath validates a path inside a content directory. It rejects
// traversal out of the directory.
func ValidatePath(path string) error {
	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "path contains invalid characters")
		}
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return New(ErrCodeInvalidInput, "path cannot contain path traversal sequences (..)")
		}
	}
	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidInput, "path cannot contain backslashes")
	}
	return nil
}
