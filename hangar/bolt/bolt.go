package bolt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"vellum/hangar"
	"vellum/hangar/encoders"
	"vellum/lib/timer"

	"github.com/samber/mo"
	"go.etcd.io/bbolt"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	dataBucket = []byte("data")
	metaBucket = []byte("meta")
)

// boltDB is a single file store. Every version of a key is its own entry of
// the data bucket, laid out by the encoders package; bolt's single writer
// makes each batch one transaction.
type boltDB struct {
	path    string
	db      *bbolt.DB
	applied atomic.Uint64
}

var _ hangar.Store = (*boltDB)(nil)

func NewHangar(path string) (*boltDB, error) {
	db, err := bbolt.Open(path, 0666, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open bolt file %s: %w", path, err)
	}
	b := &boltDB{path: path, db: db}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(dataBucket); err != nil {
			return fmt.Errorf("create data bucket failed: %w", err)
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return fmt.Errorf("create meta bucket failed: %w", err)
		}
		if v := meta.Get(encoders.AppliedPositionKey); v != nil {
			pos, err := encoders.DecodePosition(v)
			if err != nil {
				return err
			}
			b.applied.Store(uint64(pos))
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	zap.L().Info("Successfully opened bolt", zap.String("path", path), zap.Uint64("applied_position", b.applied.Load()))
	return b, nil
}

func (b *boltDB) AppliedPosition() hangar.Position {
	return hangar.Position(b.applied.Load())
}

func (b *boltDB) Get(ctx context.Context, table hangar.TableID, key []byte) (mo.Option[[]byte], error) {
	return b.GetAt(ctx, table, key, hangar.CurrentPosition)
}

func (b *boltDB) GetAt(ctx context.Context, table hangar.TableID, key []byte, pos hangar.Position) (mo.Option[[]byte], error) {
	_, t := timer.Start(ctx, "hangar.bolt.get")
	defer t.Stop()
	ret := mo.None[[]byte]()
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		k, v := c.Seek(encoders.EncodeKey(table, key, pos))
		if k == nil || !bytes.HasPrefix(k, encoders.KeyPrefix(table, key)) {
			return nil
		}
		val, live, err := encoders.DecodeValue(v)
		if err != nil {
			return err
		}
		if live {
			ret = mo.Some(val)
		}
		return nil
	})
	return ret, err
}

func (b *boltDB) Scan(ctx context.Context, req hangar.ScanRequest) ([]hangar.KV, error) {
	return b.ScanAt(ctx, req, hangar.CurrentPosition)
}

func (b *boltDB) ScanAt(ctx context.Context, req hangar.ScanRequest, pos hangar.Position) ([]hangar.KV, error) {
	_, t := timer.Start(ctx, "hangar.bolt.scan")
	defer t.Stop()
	lower, upper := encoders.RangeBounds(req.Table, req.Start, req.End)
	f := encoders.NewVersionFilter(req, pos)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		var k, v []byte
		if req.Reverse {
			if k, v = c.Seek(upper); k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		} else {
			k, v = c.Seek(lower)
		}
		for ; k != nil; k, v = step(c, req.Reverse) {
			if bytes.Compare(k, lower) < 0 || bytes.Compare(k, upper) >= 0 {
				break
			}
			more, err := f.Push(k, v)
			if err != nil {
				return err
			}
			if !more {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ret := f.Finish()
	if ret == nil {
		ret = make([]hangar.KV, 0)
	}
	return ret, nil
}

func step(c *bbolt.Cursor, reverse bool) ([]byte, []byte) {
	if reverse {
		return c.Prev()
	}
	return c.Next()
}

func (b *boltDB) Apply(ctx context.Context, batch hangar.Batch) error {
	_, t := timer.Start(ctx, "hangar.bolt.apply")
	defer t.Stop()
	if err := hangar.ValidateBatch(batch, b.AppliedPosition()); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		data := tx.Bucket(dataBucket)
		for _, m := range hangar.MergeMutations(batch.Mutations) {
			ek := encoders.EncodeKey(m.Table, m.Key, batch.Position)
			if err := data.Put(ek, encoders.EncodeValue(m.Value, m.Delete)); err != nil {
				return err
			}
		}
		return tx.Bucket(metaBucket).Put(encoders.AppliedPositionKey, encoders.EncodePosition(batch.Position))
	})
	if err != nil {
		return fmt.Errorf("failed to apply batch %d: %w", batch.Position, err)
	}
	b.applied.Store(uint64(batch.Position))
	return nil
}

func (b *boltDB) Close() error {
	return b.db.Close()
}

func (b *boltDB) Teardown() error {
	if err := b.Close(); err != nil {
		return err
	}
	return os.Remove(b.path)
}
