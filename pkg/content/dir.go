package content

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/matzehuels/stackmap/pkg/errors"
)

// Dir serves resources from a local directory. The URL path selects the
// file; scheme and host are ignored, so a site mirrored to disk answers for
// whatever origin the page was loaded from. A path ending in "/" maps to
// index.html.
type Dir struct {
	root string
}

// NewDir creates a store rooted at root.
func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	return &Dir{root: root}, nil
}

// Get reads the file addressed by rawURL.
func (d *Dir) Get(ctx context.Context, rawURL string) (*Resource, error) {
	p, err := d.resolve(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return &Resource{URL: rawURL, MIMEType: TypeByPath(p), Data: data}, nil
}

func (d *Dir) resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if err := errors.ValidatePath(u.Path); err != nil {
		return "", err
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index.html"
	}
	return filepath.Join(d.root, filepath.FromSlash(path.Clean("/"+p))), nil
}

var _ Store = (*Dir)(nil)
