// Package encoders is the physical layout shared by the stores that keep
// versions themselves rather than relying on the engine underneath.
//
// A data key is
//
//	0x01 | table (8 bytes BE) | escaped user key | 0x00 0x01 | ^position (8 bytes BE)
//
// Escaping writes 0x00 as 0x00 0xFF, so the terminator keeps user keys in
// byte order even when one is a prefix of another, and inverting the
// position puts the newest version of a key first. Values are a one byte
// kind followed by the snappy compressed payload.
package encoders

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"vellum/hangar"

	"github.com/golang/snappy"
)

const (
	metaPrefix byte = 0x00
	dataPrefix byte = 0x01

	escapeByte byte = 0x00
	escapedNul byte = 0xFF
	terminator byte = 0x01

	kindValue     byte = 0x00
	kindTombstone byte = 0x01
)

// AppliedPositionKey holds the last applied batch position.
var AppliedPositionKey = []byte{metaPrefix, 'p', 'o', 's'}

// TablePrefix is the prefix shared by every key of table.
func TablePrefix(table hangar.TableID) []byte {
	buf := make([]byte, 9)
	buf[0] = dataPrefix
	binary.BigEndian.PutUint64(buf[1:], uint64(table))
	return buf
}

// PlainKey is the unversioned key of a table entry, for engines that version
// entries natively.
func PlainKey(table hangar.TableID, key []byte) []byte {
	return append(TablePrefix(table), key...)
}

// KeyPrefix is the prefix shared by every version of key.
func KeyPrefix(table hangar.TableID, key []byte) []byte {
	buf := TablePrefix(table)
	buf = appendEscaped(buf, key)
	return append(buf, escapeByte, terminator)
}

// EncodeKey is the physical key of key's version written at pos.
func EncodeKey(table hangar.TableID, key []byte, pos hangar.Position) []byte {
	buf := KeyPrefix(table, key)
	var ver [8]byte
	binary.BigEndian.PutUint64(ver[:], ^uint64(pos))
	return append(buf, ver[:]...)
}

// RangeBounds are the physical bounds of the user key range [start, end) of
// table. An empty end runs to the end of the table.
func RangeBounds(table hangar.TableID, start, end []byte) ([]byte, []byte) {
	prefix := TablePrefix(table)
	lower := appendEscaped(append([]byte(nil), prefix...), start)
	if len(end) == 0 {
		return lower, PrefixEnd(prefix)
	}
	return lower, appendEscaped(append([]byte(nil), prefix...), end)
}

// PrefixEnd is the smallest key greater than every key starting with prefix.
// It returns nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// DecodeKey splits a physical data key into its parts.
func DecodeKey(ek []byte) (hangar.TableID, []byte, hangar.Position, error) {
	if len(ek) < 9+2+8 || ek[0] != dataPrefix {
		return 0, nil, 0, fmt.Errorf("invalid versioned key: %x", ek)
	}
	table := hangar.TableID(binary.BigEndian.Uint64(ek[1:9]))
	body := ek[9 : len(ek)-8]
	pos := hangar.Position(^binary.BigEndian.Uint64(ek[len(ek)-8:]))
	key := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		if body[i] != escapeByte {
			key = append(key, body[i])
			continue
		}
		if i+1 >= len(body) {
			return 0, nil, 0, fmt.Errorf("truncated escape in key: %x", ek)
		}
		switch body[i+1] {
		case escapedNul:
			key = append(key, 0)
			i++
		case terminator:
			if i+2 != len(body) {
				return 0, nil, 0, fmt.Errorf("terminator inside key: %x", ek)
			}
			return table, key, pos, nil
		default:
			return 0, nil, 0, fmt.Errorf("invalid escape in key: %x", ek)
		}
	}
	return 0, nil, 0, fmt.Errorf("unterminated key: %x", ek)
}

func appendEscaped(buf, key []byte) []byte {
	for _, b := range key {
		if b == escapeByte {
			buf = append(buf, escapeByte, escapedNul)
		} else {
			buf = append(buf, b)
		}
	}
	return buf
}

// EncodeValue frames a value, or a tombstone when del is set.
func EncodeValue(val []byte, del bool) []byte {
	if del {
		return []byte{kindTombstone}
	}
	buf := make([]byte, 1+snappy.MaxEncodedLen(len(val)))
	buf[0] = kindValue
	n := len(snappy.Encode(buf[1:], val))
	return buf[:1+n]
}

// DecodeValue returns the payload of a framed value. The bool is false for
// tombstones.
func DecodeValue(data []byte) ([]byte, bool, error) {
	if len(data) == 0 {
		return nil, false, fmt.Errorf("empty value frame")
	}
	switch data[0] {
	case kindTombstone:
		return nil, false, nil
	case kindValue:
		val, err := snappy.Decode(nil, data[1:])
		if err != nil {
			return nil, false, fmt.Errorf("failed to decompress value: %w", err)
		}
		if val == nil {
			val = []byte{}
		}
		return val, true, nil
	}
	return nil, false, fmt.Errorf("unknown value kind %d", data[0])
}

// EncodePosition and DecodePosition store the applied position.
func EncodePosition(pos hangar.Position) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(pos))
	return buf[:]
}

func DecodePosition(data []byte) (hangar.Position, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid position of %d bytes", len(data))
	}
	return hangar.Position(binary.BigEndian.Uint64(data)), nil
}

// VersionFilter turns a walk over physical entries into the visible user
// entries as of a position. Entries must be pushed in physical key order, or
// in exactly reverse order when the request is reversed.
type VersionFilter struct {
	req hangar.ScanRequest
	pos hangar.Position

	cur  []byte
	val  []byte
	live bool
	seen bool
	ret  []hangar.KV
}

func NewVersionFilter(req hangar.ScanRequest, pos hangar.Position) *VersionFilter {
	return &VersionFilter{req: req, pos: pos}
}

// Push feeds the next physical entry. It returns false once the request's
// limit is reached and the walk can stop.
func (f *VersionFilter) Push(ek, ev []byte) (bool, error) {
	_, key, ver, err := DecodeKey(ek)
	if err != nil {
		return false, err
	}
	if f.cur == nil || !bytes.Equal(key, f.cur) {
		f.flush()
		if f.req.Full(f.ret) {
			return false, nil
		}
		f.cur, f.seen, f.live, f.val = key, false, false, nil
	}
	if ver > f.pos || !f.req.InRange(key) {
		return true, nil
	}
	// forward walks see the newest version first, reverse walks see it last
	if f.seen && !f.req.Reverse {
		return true, nil
	}
	val, live, err := DecodeValue(ev)
	if err != nil {
		return false, err
	}
	f.seen, f.live, f.val = true, live, val
	return true, nil
}

func (f *VersionFilter) flush() {
	if f.seen && f.live && !f.req.Full(f.ret) {
		f.ret = append(f.ret, hangar.KV{Key: f.cur, Value: f.val})
	}
	f.seen = false
}

// Finish returns the visible entries.
func (f *VersionFilter) Finish() []hangar.KV {
	f.flush()
	return f.ret
}
