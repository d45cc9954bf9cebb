package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/matzehuels/stackmap/internal/config"
	"github.com/matzehuels/stackmap/pkg/content"
	"github.com/matzehuels/stackmap/pkg/httputil"
)

// openStore builds the content store selected by cfg. The returned close
// function releases any connection it holds.
func (c *CLI) openStore(ctx context.Context, cfg config.Content) (content.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case config.KindMemory:
		f, err := os.Open(cfg.Stash)
		if err != nil {
			return nil, nil, fmt.Errorf("open stash: %w", err)
		}
		defer f.Close()
		m := content.NewMemory()
		if err := m.LoadStash(f); err != nil {
			return nil, nil, err
		}
		c.Logger.Debug("loaded stash", "path", cfg.Stash, "resources", m.Len())
		return m, noop, nil

	case config.KindDir:
		d, err := content.NewDir(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return d, noop, nil

	case config.KindRedis:
		client, err := content.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		c.Logger.Debug("connected to redis", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
		return content.NewRedis(client, cfg.RedisPrefix), client.Close, nil

	case config.KindHTTP:
		opts := []content.HTTPOption{content.WithHeaders(cfg.Headers)}
		if cfg.CacheTTL.Duration > 0 {
			cache, err := httputil.NewCache("", cfg.CacheTTL.Duration)
			if err != nil {
				c.Logger.Warn("response cache disabled", "err", err)
			} else {
				opts = append(opts, content.WithCache(cache))
			}
		}
		return content.NewHTTP(opts...), noop, nil
	}
	return nil, nil, fmt.Errorf("unsupported content kind %q", cfg.Kind)
}
