package hangar

import (
	"bytes"
	"fmt"
)

// InRange reports whether key falls in [req.Start, req.End).
func (req ScanRequest) InRange(key []byte) bool {
	if bytes.Compare(key, req.Start) < 0 {
		return false
	}
	return len(req.End) == 0 || bytes.Compare(key, req.End) < 0
}

// Full reports whether ret already holds as many pairs as the request asks.
func (req ScanRequest) Full(ret []KV) bool {
	return req.Limit > 0 && len(ret) >= req.Limit
}

// ValidateBatch checks a batch against the position the store has applied so
// far.
func ValidateBatch(batch Batch, applied Position) error {
	if batch.Position == 0 || batch.Position == CurrentPosition {
		return fmt.Errorf("invalid batch position %d", batch.Position)
	}
	if batch.Position <= applied {
		return fmt.Errorf("%w: batch %d, applied %d", ErrStalePosition, batch.Position, applied)
	}
	for _, m := range batch.Mutations {
		if len(m.Key) == 0 {
			return fmt.Errorf("empty key in batch %d for table %d", batch.Position, m.Table)
		}
	}
	return nil
}

// MergeMutations keeps only the last mutation of every (table, key) pair in
// the batch, preserving first-seen order.
func MergeMutations(mutations []Mutation) []Mutation {
	type tableKey struct {
		table TableID
		key   string
	}
	ptr := make(map[tableKey]int, len(mutations))
	ret := make([]Mutation, 0, len(mutations))
	for _, m := range mutations {
		tk := tableKey{m.Table, string(m.Key)}
		if j, ok := ptr[tk]; ok {
			ret[j] = m
		} else {
			ptr[tk] = len(ret)
			ret = append(ret, m)
		}
	}
	return ret
}
