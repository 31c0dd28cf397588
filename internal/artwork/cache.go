package artwork

import (
	"log/slog"
	"path/filepath"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes embedded pictures by asset path for the whole process.
// Entries never expire: a replaced asset keeps serving its old picture
// until Invalidate or Flush is called. Assets without a picture are cached
// as well; read errors are not.
type Cache struct {
	reader Reader
	items  *gocache.Cache
	loads  singleflight.Group
	logger *slog.Logger
}

// NewCache creates an empty cache in front of reader.
func NewCache(reader Reader, logger *slog.Logger) *Cache {
	return &Cache{
		reader: reader,
		// No default expiration and no janitor goroutine.
		items:  gocache.New(gocache.NoExpiration, 0),
		logger: logger.With("component", "art-cache"),
	}
}

// key maps the spellings of one asset path to a single entry: relative
// paths are made absolute and every path is cleaned.
func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Picture returns the embedded picture of the asset at path, reading it at
// most once per path even under concurrent callers.
func (c *Cache) Picture(path string) ([]byte, error) {
	k := key(path)
	if v, ok := c.items.Get(k); ok {
		return v.([]byte), nil
	}

	v, err, shared := c.loads.Do(k, func() (any, error) {
		// A load that finished between the lookup above and Do already
		// filled the entry.
		if v, ok := c.items.Get(k); ok {
			return v, nil
		}
		data, err := c.reader.ReadPicture(path)
		if err != nil {
			return nil, err
		}
		c.items.Set(k, data, gocache.NoExpiration)
		return data, nil
	})
	if err != nil {
		c.logger.Debug("reading embedded art failed", slog.String("path", path), slog.Any("error", err))
		return nil, err
	}
	if !shared {
		c.logger.Debug("embedded art cached", slog.String("path", path), slog.Int("bytes", len(v.([]byte))))
	}
	return v.([]byte), nil
}

// Invalidate drops the cached picture of one asset.
func (c *Cache) Invalidate(path string) {
	c.items.Delete(key(path))
}

// Flush drops every cached picture.
func (c *Cache) Flush() {
	c.items.Flush()
}

// Len returns the number of cached assets.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}
