package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/matzehuels/stackmap/pkg/httputil"
	"github.com/matzehuels/stackmap/pkg/observability"
)

const (
	httpTimeout = 10 * time.Second

	// maxBodySize bounds a single fetched resource.
	maxBodySize = 64 << 20
)

// HTTP fetches resources live with retry on transient failures. When a
// cache is configured, successful responses are stored on disk and served
// from there on later runs.
type HTTP struct {
	client  *http.Client
	cache   *httputil.Cache
	headers map[string]string
}

// HTTPOption configures an [HTTP] store.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithCache stores responses in cache under the "content:" namespace.
func WithCache(cache *httputil.Cache) HTTPOption {
	return func(h *HTTP) {
		if cache != nil {
			h.cache = cache.Namespace("content:")
		}
	}
}

// WithHeaders sets headers sent with every request.
func WithHeaders(headers map[string]string) HTTPOption {
	return func(h *HTTP) { h.headers = headers }
}

// NewHTTP creates a live content store.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{client: &http.Client{Timeout: httpTimeout}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// cachedResource is the on-disk form of a fetched resource.
type cachedResource struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Get fetches url, consulting the disk cache first.
func (h *HTTP) Get(ctx context.Context, url string) (*Resource, error) {
	if h.cache != nil {
		var c cachedResource
		if ok, _ := h.cache.Get(url, &c); ok {
			if u, err := neturl.Parse(url); err == nil {
				observability.HTTP().OnCacheHit(ctx, u.Host, u.Path)
			}
			return &Resource{URL: url, MIMEType: c.MIMEType, Data: c.Data}, nil
		}
	}

	var res *Resource
	err := httputil.RetryWithBackoff(ctx, func() error {
		r, err := h.fetch(ctx, url)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		if errors.Is(err, httputil.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, url, err)
	}

	if h.cache != nil {
		_ = h.cache.Set(url, cachedResource{MIMEType: res.MIMEType, Data: res.Data})
	}
	return res, nil
}

func (h *HTTP) fetch(ctx context.Context, url string) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, req.URL.Host, req.URL.Path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, httputil.Retryable(err)
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := httputil.CheckStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, httputil.Retryable(err)
	}

	mt := resp.Header.Get("Content-Type")
	if mt == "" {
		mt = TypeByPath(req.URL.Path)
	}
	return &Resource{URL: url, MIMEType: mt, Data: data}, nil
}

var _ Store = (*HTTP)(nil)
