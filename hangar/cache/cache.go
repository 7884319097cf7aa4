package cache

import (
	"context"
	"time"

	"vellum/hangar"
	"vellum/hangar/encoders"
	rstats "vellum/lib/ristretto"
	"vellum/lib/timer"

	"github.com/dgraph-io/ristretto"
	"github.com/samber/mo"
)

// rcache puts a ristretto cache in front of point reads of another store.
// Entries are keyed by the position they were read at, and only positions
// the store has already applied are cached, so an entry never goes stale.
type rcache struct {
	base  hangar.Store
	cache *ristretto.Cache
	stop  chan struct{}
}

var _ hangar.Store = &rcache{}

type entry struct {
	value []byte
	found bool
}

func NewHangar(base hangar.Store, maxSize, avgSize uint64) (*rcache, error) {
	config := &ristretto.Config{
		BufferItems: 64,
		NumCounters: 10 * int64(maxSize/avgSize),
		MaxCost:     int64(maxSize),
		Metrics:     true,
	}
	cache, err := ristretto.NewCache(config)
	if err != nil {
		return nil, err
	}
	ret := rcache{base: base, cache: cache, stop: make(chan struct{})}
	// Start reporting cache stats periodically.
	rstats.ReportPeriodically("hangar", cache, 10*time.Second, ret.stop)
	return &ret, nil
}

func (c *rcache) AppliedPosition() hangar.Position {
	return c.base.AppliedPosition()
}

func (c *rcache) Get(ctx context.Context, table hangar.TableID, key []byte) (mo.Option[[]byte], error) {
	return c.GetAt(ctx, table, key, hangar.CurrentPosition)
}

func (c *rcache) GetAt(ctx context.Context, table hangar.TableID, key []byte, pos hangar.Position) (mo.Option[[]byte], error) {
	ctx, t := timer.Start(ctx, "hangar.cache.get")
	defer t.Stop()
	if applied := c.base.AppliedPosition(); pos > applied {
		pos = applied
	}
	ck := encoders.EncodeKey(table, key, pos)
	if v, ok := c.cache.Get(ck); ok {
		if e, ok := v.(entry); ok {
			if !e.found {
				return mo.None[[]byte](), nil
			}
			return mo.Some(append([]byte{}, e.value...)), nil
		}
		c.cache.Del(ck)
	}
	got, err := c.base.GetAt(ctx, table, key, pos)
	if err != nil {
		return got, err
	}
	e := entry{value: got.OrElse(nil), found: got.IsPresent()}
	c.cache.Set(ck, e, int64(len(ck)+len(e.value)))
	if got.IsPresent() {
		return mo.Some(append([]byte{}, e.value...)), nil
	}
	return got, nil
}

func (c *rcache) Scan(ctx context.Context, req hangar.ScanRequest) ([]hangar.KV, error) {
	return c.base.Scan(ctx, req)
}

func (c *rcache) ScanAt(ctx context.Context, req hangar.ScanRequest, pos hangar.Position) ([]hangar.KV, error) {
	return c.base.ScanAt(ctx, req, pos)
}

func (c *rcache) Apply(ctx context.Context, batch hangar.Batch) error {
	return c.base.Apply(ctx, batch)
}

func (c *rcache) Close() error {
	close(c.stop)
	c.cache.Close()
	return c.base.Close()
}

func (c *rcache) Teardown() error {
	close(c.stop)
	c.cache.Close()
	return c.base.Teardown()
}
