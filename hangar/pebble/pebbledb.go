package pebble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"vellum/hangar"
	"vellum/hangar/encoders"
	"vellum/lib/timer"

	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/mo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var statsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "hangar_pebble_stats",
	Help: "Stats about the hangar pebble store",
}, []string{"metric"})

// pebbleDB keeps every version of a key as its own pebble key, laid out by
// the encoders package.
type pebbleDB struct {
	dirname string
	db      *pebble.DB
	applied atomic.Uint64

	closeCh chan int
	closeWg sync.WaitGroup
}

var _ hangar.Store = (*pebbleDB)(nil)

func NewHangar(dirname string, opts *pebble.Options) (*pebbleDB, error) {
	db, err := pebble.Open(dirname, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open: %w", err)
	}
	p := &pebbleDB{dirname: dirname, db: db, closeCh: make(chan int)}
	val, closer, err := db.Get(encoders.AppliedPositionKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		_ = db.Close()
		return nil, err
	default:
		pos, err := encoders.DecodePosition(val)
		_ = closer.Close()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		p.applied.Store(uint64(pos))
	}
	zap.L().Info("Successfully opened pebble", zap.String("dir", dirname), zap.Uint64("applied_position", p.applied.Load()))
	p.startReportingMetrics()
	return p, nil
}

func (p *pebbleDB) startReportingMetrics() {
	p.closeWg.Add(1)
	go func() {
		defer p.closeWg.Done()
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-p.closeCh:
				return
			case <-ticker.C:
				m := p.db.Metrics()
				statsGauge.WithLabelValues("disk_space_usage").Set(float64(m.DiskSpaceUsage()))
				statsGauge.WithLabelValues("compactions").Set(float64(m.Compact.Count))
				statsGauge.WithLabelValues("flushes").Set(float64(m.Flush.Count))
				statsGauge.WithLabelValues("memtable_size").Set(float64(m.MemTable.Size))
				statsGauge.WithLabelValues("applied_position").Set(float64(p.applied.Load()))
			}
		}
	}()
}

func (p *pebbleDB) AppliedPosition() hangar.Position {
	return hangar.Position(p.applied.Load())
}

func (p *pebbleDB) Get(ctx context.Context, table hangar.TableID, key []byte) (mo.Option[[]byte], error) {
	return p.GetAt(ctx, table, key, hangar.CurrentPosition)
}

// GetAt seeks to the key's version at pos. Versions sort newest first, so
// the first entry at or after it is the newest one not after pos.
func (p *pebbleDB) GetAt(ctx context.Context, table hangar.TableID, key []byte, pos hangar.Position) (mo.Option[[]byte], error) {
	_, t := timer.Start(ctx, "hangar.pebble.get")
	defer t.Stop()
	it := p.db.NewIter(&pebble.IterOptions{
		LowerBound: encoders.EncodeKey(table, key, pos),
		UpperBound: encoders.PrefixEnd(encoders.KeyPrefix(table, key)),
	})
	defer it.Close()
	if !it.First() {
		return mo.None[[]byte](), it.Error()
	}
	val, live, err := encoders.DecodeValue(it.Value())
	if err != nil || !live {
		return mo.None[[]byte](), err
	}
	return mo.Some(val), nil
}

func (p *pebbleDB) Scan(ctx context.Context, req hangar.ScanRequest) ([]hangar.KV, error) {
	return p.ScanAt(ctx, req, hangar.CurrentPosition)
}

func (p *pebbleDB) ScanAt(ctx context.Context, req hangar.ScanRequest, pos hangar.Position) ([]hangar.KV, error) {
	_, t := timer.Start(ctx, "hangar.pebble.scan")
	defer t.Stop()
	lower, upper := encoders.RangeBounds(req.Table, req.Start, req.End)
	it := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	defer it.Close()

	f := encoders.NewVersionFilter(req, pos)
	valid, step := it.First, it.Next
	if req.Reverse {
		valid, step = it.Last, it.Prev
	}
	for ok := valid(); ok; ok = step() {
		more, err := f.Push(it.Key(), it.Value())
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	ret := f.Finish()
	if ret == nil {
		ret = make([]hangar.KV, 0)
	}
	return ret, nil
}

func (p *pebbleDB) Apply(ctx context.Context, batch hangar.Batch) error {
	_, t := timer.Start(ctx, "hangar.pebble.apply")
	defer t.Stop()
	if err := hangar.ValidateBatch(batch, p.AppliedPosition()); err != nil {
		return err
	}
	b := p.db.NewBatch()
	defer b.Close()
	for _, m := range hangar.MergeMutations(batch.Mutations) {
		ek := encoders.EncodeKey(m.Table, m.Key, batch.Position)
		if err := b.Set(ek, encoders.EncodeValue(m.Value, m.Delete), nil); err != nil {
			return fmt.Errorf("failed to set entry: %w", err)
		}
	}
	if err := b.Set(encoders.AppliedPositionKey, encoders.EncodePosition(batch.Position), nil); err != nil {
		return fmt.Errorf("failed to set applied position: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	p.applied.Store(uint64(batch.Position))
	return nil
}

func (p *pebbleDB) Close() error {
	close(p.closeCh)
	p.closeWg.Wait()
	return p.db.Close()
}

func (p *pebbleDB) Teardown() error {
	if err := p.Close(); err != nil {
		return err
	}
	if p.dirname == "" {
		return nil
	}
	return os.RemoveAll(p.dirname)
}
