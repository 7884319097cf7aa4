package hangar

import (
	"context"
	"errors"

	"github.com/samber/mo"
)

// TableID names a keyspace inside a store. Keys of different tables never
// collide.
type TableID uint64

// Position is an offset into the write log. Every applied batch carries a
// position strictly greater than the previous one; the first real position is
// 1, so reading at 0 sees an empty store.
type Position uint64

// CurrentPosition reads the latest applied state.
const CurrentPosition = Position(^uint64(0))

var ErrStalePosition = errors.New("batch position is not after the applied position")

type KV struct {
	Key   []byte
	Value []byte
}

// ScanRequest selects keys in the half open range [Start, End). An empty End
// means the range is unbounded above. Limit <= 0 returns every key in range.
// When Reverse is set the greatest keys are returned first.
type ScanRequest struct {
	Table   TableID
	Start   []byte
	End     []byte
	Limit   int
	Reverse bool
}

type Mutation struct {
	Table  TableID
	Key    []byte
	Value  []byte
	Delete bool
}

type Batch struct {
	Position  Position
	Mutations []Mutation
}

// Reader is the read side of a store. Get and Scan see the latest applied
// state; GetAt and ScanAt see the state as of pos, including every batch with
// a position <= pos.
type Reader interface {
	Get(ctx context.Context, table TableID, key []byte) (mo.Option[[]byte], error)
	GetAt(ctx context.Context, table TableID, key []byte, pos Position) (mo.Option[[]byte], error)
	Scan(ctx context.Context, req ScanRequest) ([]KV, error)
	ScanAt(ctx context.Context, req ScanRequest, pos Position) ([]KV, error)
}

type Store interface {
	Reader
	// Apply writes all mutations of the batch atomically at batch.Position.
	// Deletes are tombstones: reads at earlier positions still see the value.
	Apply(ctx context.Context, batch Batch) error
	AppliedPosition() Position
	Close() error
	Teardown() error
}
