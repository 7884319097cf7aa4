package encoders

import (
	"bytes"
	"math/rand"
	"sort"
	"testing"

	"vellum/hangar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKey(t *testing.T) {
	scenarios := []struct {
		name  string
		table hangar.TableID
		key   []byte
		pos   hangar.Position
	}{
		{"plain", 1, []byte("hello"), 1},
		{"nul_bytes", 7, []byte{0, 0, 'a', 0}, 42},
		{"high_bytes", 1 << 40, []byte{0xFF, 0xFE, 0x01}, 1 << 50},
		{"large", 3, bytes.Repeat([]byte("k"), 10_000), 9},
	}
	for _, scene := range scenarios {
		t.Run(scene.name, func(t *testing.T) {
			ek := EncodeKey(scene.table, scene.key, scene.pos)
			assert.True(t, bytes.HasPrefix(ek, TablePrefix(scene.table)))
			assert.True(t, bytes.HasPrefix(ek, KeyPrefix(scene.table, scene.key)))
			table, key, pos, err := DecodeKey(ek)
			require.NoError(t, err)
			assert.Equal(t, scene.table, table)
			assert.Equal(t, scene.key, key)
			assert.Equal(t, scene.pos, pos)
		})
	}
}

func TestDecodeKey_Invalid(t *testing.T) {
	for _, ek := range [][]byte{
		nil,
		{0x01, 0, 0},
		append(TablePrefix(1), 'a', 0x00, 0x05, 0, 0, 0, 0, 0, 0, 0, 0),
		append(TablePrefix(1), 'a', 'b', 'c', 0, 0, 0, 0, 0, 0, 0, 0),
	} {
		_, _, _, err := DecodeKey(ek)
		assert.Error(t, err, "%x", ek)
	}
}

func TestEncodeKey_Order(t *testing.T) {
	keys := [][]byte{{}, {0}, {0, 0}, {0, 1}, {1}, []byte("a"), []byte("a\x00"), []byte("ab"), {0xFF}}
	// physical order must group versions of a key, newest first, and keep
	// user keys in byte order
	var encoded [][]byte
	for _, k := range keys {
		if len(k) == 0 {
			continue
		}
		for _, pos := range []hangar.Position{1, 5, 100} {
			encoded = append(encoded, EncodeKey(9, k, pos))
		}
	}
	shuffled := append([][]byte(nil), encoded...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	sort.Slice(shuffled, func(i, j int) bool { return bytes.Compare(shuffled[i], shuffled[j]) < 0 })

	var prevKey []byte
	var prevPos hangar.Position
	for i, ek := range shuffled {
		_, key, pos, err := DecodeKey(ek)
		require.NoError(t, err)
		if i > 0 {
			cmp := bytes.Compare(prevKey, key)
			assert.LessOrEqual(t, cmp, 0)
			if cmp == 0 {
				assert.Greater(t, prevPos, pos)
			}
		}
		prevKey, prevPos = key, pos
	}
}

func TestRangeBounds(t *testing.T) {
	lower, upper := RangeBounds(2, []byte("b"), []byte("d"))
	inside := [][]byte{[]byte("b"), []byte("b\x00"), []byte("c"), []byte("czz")}
	outside := [][]byte{[]byte("a"), []byte("a\xFF"), []byte("d"), []byte("d\x00"), []byte("e")}
	for _, k := range inside {
		ek := EncodeKey(2, k, 3)
		assert.True(t, bytes.Compare(ek, lower) >= 0 && bytes.Compare(ek, upper) < 0, "%q", k)
	}
	for _, k := range outside {
		ek := EncodeKey(2, k, 3)
		assert.False(t, bytes.Compare(ek, lower) >= 0 && bytes.Compare(ek, upper) < 0, "%q", k)
	}

	// unbounded above stops at the next table
	_, upper = RangeBounds(2, nil, nil)
	assert.Equal(t, TablePrefix(3), upper)
	assert.Less(t, bytes.Compare(EncodeKey(2, []byte{0xFF, 0xFF}, 1), upper), 0)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x03}, PrefixEnd([]byte{0x01, 0x02}))
	assert.Equal(t, []byte{0x02}, PrefixEnd([]byte{0x01, 0xFF}))
	assert.Nil(t, PrefixEnd([]byte{0xFF, 0xFF}))
}

func TestEncodeValue(t *testing.T) {
	scenarios := []struct {
		name string
		val  []byte
		del  bool
	}{
		{"empty", []byte{}, false},
		{"small", []byte("hello world"), false},
		{"repetitive", bytes.Repeat([]byte("abc"), 100_000), false},
		{"tombstone", nil, true},
	}
	for _, scene := range scenarios {
		t.Run(scene.name, func(t *testing.T) {
			val, live, err := DecodeValue(EncodeValue(scene.val, scene.del))
			require.NoError(t, err)
			assert.Equal(t, !scene.del, live)
			if !scene.del {
				assert.Equal(t, scene.val, val)
			}
		})
	}
	_, _, err := DecodeValue(nil)
	assert.Error(t, err)
	_, _, err = DecodeValue([]byte{0x07})
	assert.Error(t, err)
}

func TestPosition(t *testing.T) {
	pos, err := DecodePosition(EncodePosition(12345))
	require.NoError(t, err)
	assert.Equal(t, hangar.Position(12345), pos)
	_, err = DecodePosition([]byte{1, 2})
	assert.Error(t, err)
}

type entry struct{ k, v []byte }

func versions(table hangar.TableID) []entry {
	// sorted physical order
	return []entry{
		{EncodeKey(table, []byte("a"), 3), EncodeValue([]byte("a3"), false)},
		{EncodeKey(table, []byte("a"), 1), EncodeValue([]byte("a1"), false)},
		{EncodeKey(table, []byte("b"), 4), EncodeValue(nil, true)},
		{EncodeKey(table, []byte("b"), 2), EncodeValue([]byte("b2"), false)},
		{EncodeKey(table, []byte("c"), 5), EncodeValue([]byte("c5"), false)},
	}
}

func TestVersionFilter(t *testing.T) {
	scenarios := []struct {
		name string
		req  hangar.ScanRequest
		pos  hangar.Position
		want []string
	}{
		{"latest", hangar.ScanRequest{}, hangar.CurrentPosition, []string{"a3", "c5"}},
		{"before_delete", hangar.ScanRequest{}, 3, []string{"a3", "b2"}},
		{"oldest", hangar.ScanRequest{}, 1, []string{"a1"}},
		{"nothing", hangar.ScanRequest{}, 0, nil},
		{"limit", hangar.ScanRequest{Limit: 1}, 3, []string{"a3"}},
		{"range", hangar.ScanRequest{Start: []byte("b")}, 3, []string{"b2"}},
		{"reverse", hangar.ScanRequest{Reverse: true}, 3, []string{"b2", "a3"}},
		{"reverse_latest", hangar.ScanRequest{Reverse: true}, hangar.CurrentPosition, []string{"c5", "a3"}},
		{"reverse_limit", hangar.ScanRequest{Reverse: true, Limit: 1}, 2, []string{"b2"}},
	}
	for _, scene := range scenarios {
		t.Run(scene.name, func(t *testing.T) {
			entries := versions(1)
			if scene.req.Reverse {
				for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
					entries[i], entries[j] = entries[j], entries[i]
				}
			}
			f := NewVersionFilter(scene.req, scene.pos)
			for _, e := range entries {
				more, err := f.Push(e.k, e.v)
				require.NoError(t, err)
				if !more {
					break
				}
			}
			var got []string
			for _, kv := range f.Finish() {
				got = append(got, string(kv.Value))
			}
			assert.Equal(t, scene.want, got)
		})
	}
}
