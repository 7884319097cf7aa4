package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"vellum/hangar"
	"vellum/hangar/encoders"
	"vellum/lib/timer"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/mo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// badgerDB runs badger in managed mode: the batch position is the commit
// timestamp of every entry of the batch and reads open transactions at the
// requested position, so badger keeps and resolves the versions itself.
type badgerDB struct {
	opts    badger.Options
	db      *badger.DB
	applied atomic.Uint64
	closeWg sync.WaitGroup
	closeCh chan int
}

var _ hangar.Store = &badgerDB{}

var badgerBatchSize = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name: "badger_batch_num_mutations",
	Help: "Number of mutations written by a single applied batch",
	Objectives: map[float64]float64{
		0.25:  0.05,
		0.50:  0.05,
		0.75:  0.05,
		0.90:  0.05,
		0.95:  0.02,
		0.99:  0.01,
		0.999: 0.001,
	},
}, []string{"store"})

func NewHangar(dirname string, blockCacheBytes int64) (*badgerDB, error) {
	opts := badger.DefaultOptions(dirname).
		WithLogger(NewLogger(zap.L())).
		WithBlockCacheSize(blockCacheBytes).
		WithNumVersionsToKeep(math.MaxInt32)
	return open(opts)
}

func open(opts badger.Options) (*badgerDB, error) {
	db, err := badger.OpenManaged(opts)
	if err != nil {
		return nil, err
	}
	if err = db.VerifyChecksum(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to verify checksum of the badgerdb instance: %w", err)
	}
	bs := &badgerDB{
		opts:    opts,
		db:      db,
		closeCh: make(chan int),
	}
	applied, err := bs.loadAppliedPosition()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	bs.applied.Store(uint64(applied))
	registerStats()
	zap.L().Info("Successfully opened badgerdb",
		zap.Uint64("max_data_version", db.MaxVersion()),
		zap.Uint64("applied_position", uint64(applied)),
	)

	// Start periodic GC of value log.
	bs.closeWg.Add(1)
	go bs.runPeriodicGC()
	return bs, nil
}

func (b *badgerDB) loadAppliedPosition() (hangar.Position, error) {
	txn := b.db.NewTransactionAt(math.MaxUint64, false)
	defer txn.Discard()
	item, err := txn.Get(encoders.AppliedPositionKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return encoders.DecodePosition(val)
}

func (b *badgerDB) Teardown() error {
	if err := b.Close(); err != nil {
		return err
	}
	return os.RemoveAll(b.opts.Dir)
}

func (b *badgerDB) Close() error {
	close(b.closeCh)
	b.closeWg.Wait()
	return b.db.Close()
}

func (b *badgerDB) runPeriodicGC() {
	defer b.closeWg.Done()
	interval := time.Hour
	// Start at a random point of the first hour so replicas don't GC together.
	timer := time.NewTimer(time.Second * time.Duration(interval.Seconds()*rand.Float64()))
	defer timer.Stop()
	for {
		select {
		case _, ok := <-b.closeCh:
			if !ok {
				zap.L().Info("PeriodicGC goroutine got closing signal, returning...")
				return
			}
		case <-timer.C:
			discardRatio := float64(0.5)
			zap.L().Info("Running badger value log GC with discard ratio", zap.Float64("ratio", discardRatio))
			err := b.db.RunValueLogGC(discardRatio)
			if errors.Is(err, badger.ErrRejected) && b.db.IsClosed() {
				zap.L().Info("DB is closed, stopping value log GC")
				return
			} else if errors.Is(err, badger.ErrNoRewrite) {
				zap.L().Info("Value log GC resulted in no rewrite")
			} else if err != nil {
				zap.L().Info("Value log GC failed", zap.Error(err))
			}
			timer.Reset(interval)
		}
	}
}

func (b *badgerDB) AppliedPosition() hangar.Position {
	return hangar.Position(b.applied.Load())
}

// readTs clamps pos to the applied position. A batch is flushed in several
// badger transactions, so entries at positions past the applied one may be
// partially written.
func (b *badgerDB) readTs(pos hangar.Position) uint64 {
	if applied := b.AppliedPosition(); pos > applied {
		return uint64(applied)
	}
	return uint64(pos)
}

func (b *badgerDB) Get(ctx context.Context, table hangar.TableID, key []byte) (mo.Option[[]byte], error) {
	return b.GetAt(ctx, table, key, hangar.CurrentPosition)
}

func (b *badgerDB) GetAt(ctx context.Context, table hangar.TableID, key []byte, pos hangar.Position) (mo.Option[[]byte], error) {
	_, t := timer.Start(ctx, "hangar.db.get")
	defer t.Stop()
	txn := b.db.NewTransactionAt(b.readTs(pos), false)
	defer txn.Discard()
	item, err := txn.Get(encoders.PlainKey(table, key))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return mo.None[[]byte](), nil
	case err != nil:
		return mo.None[[]byte](), err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return mo.None[[]byte](), err
	}
	if val == nil {
		val = []byte{}
	}
	return mo.Some(val), nil
}

func (b *badgerDB) Scan(ctx context.Context, req hangar.ScanRequest) ([]hangar.KV, error) {
	return b.ScanAt(ctx, req, hangar.CurrentPosition)
}

func (b *badgerDB) ScanAt(ctx context.Context, req hangar.ScanRequest, pos hangar.Position) ([]hangar.KV, error) {
	_, t := timer.Start(ctx, "hangar.db.scan")
	defer t.Stop()
	txn := b.db.NewTransactionAt(b.readTs(pos), false)
	defer txn.Discard()

	prefix := encoders.TablePrefix(req.Table)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = req.Reverse
	if req.Limit > 0 && req.Limit < opts.PrefetchSize {
		opts.PrefetchSize = req.Limit
	}
	it := txn.NewIterator(opts)
	defer it.Close()

	switch {
	case !req.Reverse:
		it.Seek(encoders.PlainKey(req.Table, req.Start))
	case len(req.End) > 0:
		it.Seek(encoders.PlainKey(req.Table, req.End))
	default:
		it.Seek(encoders.PrefixEnd(prefix))
	}
	ret := make([]hangar.KV, 0)
	for ; it.ValidForPrefix(prefix) && !req.Full(ret); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)[len(prefix):]
		if !req.InRange(key) {
			// reverse seeks land on End itself when it exists
			if req.Reverse && len(req.End) > 0 && string(key) >= string(req.End) {
				continue
			}
			break
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		if val == nil {
			val = []byte{}
		}
		ret = append(ret, hangar.KV{Key: key, Value: val})
	}
	return ret, nil
}

// Apply writes the batch with a managed write batch committing at the batch
// position. The applied position is written last, inside the same batch.
func (b *badgerDB) Apply(ctx context.Context, batch hangar.Batch) error {
	_, t := timer.Start(ctx, "hangar.db.apply")
	defer t.Stop()
	if err := hangar.ValidateBatch(batch, b.AppliedPosition()); err != nil {
		return err
	}
	mutations := hangar.MergeMutations(batch.Mutations)
	badgerBatchSize.WithLabelValues("badger").Observe(float64(len(mutations)))

	wb := b.db.NewWriteBatchAt(uint64(batch.Position))
	defer wb.Cancel()
	for _, m := range mutations {
		ek := encoders.PlainKey(m.Table, m.Key)
		var err error
		if m.Delete {
			err = wb.Delete(ek)
		} else {
			err = wb.Set(ek, append([]byte{}, m.Value...))
		}
		if err != nil {
			return fmt.Errorf("failed to write mutation to batch: %w", err)
		}
	}
	if err := wb.Set(encoders.AppliedPositionKey, encoders.EncodePosition(batch.Position)); err != nil {
		return fmt.Errorf("failed to write applied position: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush batch %d: %w", batch.Position, err)
	}
	b.applied.Store(uint64(batch.Position))
	return nil
}
