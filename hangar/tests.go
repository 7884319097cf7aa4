package hangar

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore runs the behaviour every Store implementation must share.
func TestStore(t *testing.T, maker func(t *testing.T) Store) {
	scenarios := []struct {
		name string
		test func(t *testing.T, store Store)
	}{
		{name: "test_basic", test: testBasic},
		{name: "test_versions", test: testVersions},
		{name: "test_stale_position", test: testStalePosition},
		{name: "test_scan", test: testScan},
		{name: "test_scan_reverse", test: testScanReverse},
		{name: "test_scan_at", test: testScanAt},
		{name: "test_tables_isolated", test: testTablesIsolated},
		{name: "test_empty_values", test: testEmptyValues},
		{name: "test_binary_keys", test: testBinaryKeys},
		{name: "test_large_batch", test: testLargeBatch},
		{name: "test_concurrent_reads", test: testConcurrentReads},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			store := maker(t)
			defer func() { _ = store.Teardown() }()
			scenario.test(t, store)
		})
	}
}

func put(table TableID, key, val string) Mutation {
	return Mutation{Table: table, Key: []byte(key), Value: []byte(val)}
}

func del(table TableID, key string) Mutation {
	return Mutation{Table: table, Key: []byte(key), Delete: true}
}

func apply(t *testing.T, store Store, pos Position, mutations ...Mutation) {
	require.NoError(t, store.Apply(context.Background(), Batch{Position: pos, Mutations: mutations}))
}

func verifyGet(t *testing.T, store Reader, table TableID, key string, pos Position, want string, present bool) {
	got, err := store.GetAt(context.Background(), table, []byte(key), pos)
	require.NoError(t, err)
	if !present {
		assert.True(t, got.IsAbsent(), "key %q at %d", key, pos)
		return
	}
	require.True(t, got.IsPresent(), "key %q at %d", key, pos)
	assert.Equal(t, want, string(got.MustGet()))
}

func keysOf(kvs []KV) []string {
	ret := make([]string, len(kvs))
	for i, kv := range kvs {
		ret[i] = string(kv.Key)
	}
	return ret
}

func testBasic(t *testing.T, store Store) {
	ctx := context.Background()
	assert.Equal(t, Position(0), store.AppliedPosition())
	got, err := store.Get(ctx, 1, []byte("missing"))
	require.NoError(t, err)
	assert.True(t, got.IsAbsent())

	apply(t, store, 1, put(1, "k1", "v1"), put(1, "k2", "v2"))
	assert.Equal(t, Position(1), store.AppliedPosition())
	got, err = store.Get(ctx, 1, []byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got.MustGet())

	apply(t, store, 2, del(1, "k1"))
	got, err = store.Get(ctx, 1, []byte("k1"))
	require.NoError(t, err)
	assert.True(t, got.IsAbsent())
	verifyGet(t, store, 1, "k2", CurrentPosition, "v2", true)
}

func testVersions(t *testing.T, store Store) {
	apply(t, store, 10, put(1, "k", "a"))
	apply(t, store, 20, put(1, "k", "b"))
	apply(t, store, 30, del(1, "k"))
	apply(t, store, 40, put(1, "k", "c"))

	verifyGet(t, store, 1, "k", 0, "", false)
	verifyGet(t, store, 1, "k", 9, "", false)
	verifyGet(t, store, 1, "k", 10, "a", true)
	verifyGet(t, store, 1, "k", 15, "a", true)
	verifyGet(t, store, 1, "k", 20, "b", true)
	verifyGet(t, store, 1, "k", 30, "", false)
	verifyGet(t, store, 1, "k", 39, "", false)
	verifyGet(t, store, 1, "k", 40, "c", true)
	verifyGet(t, store, 1, "k", CurrentPosition, "c", true)

	// the last write of a key within a batch wins
	apply(t, store, 50, put(1, "k", "d"), put(1, "k", "e"))
	verifyGet(t, store, 1, "k", 50, "e", true)
}

func testStalePosition(t *testing.T, store Store) {
	ctx := context.Background()
	apply(t, store, 5, put(1, "k", "v"))
	for _, pos := range []Position{5, 4} {
		err := store.Apply(ctx, Batch{Position: pos, Mutations: []Mutation{put(1, "k", "stale")}})
		assert.True(t, errors.Is(err, ErrStalePosition), "position %d: %v", pos, err)
	}
	assert.Error(t, store.Apply(ctx, Batch{Position: 6, Mutations: []Mutation{{Table: 1}}}))
	assert.Equal(t, Position(5), store.AppliedPosition())
	verifyGet(t, store, 1, "k", CurrentPosition, "v", true)
}

func testScan(t *testing.T, store Store) {
	ctx := context.Background()
	var mutations []Mutation
	for i := 0; i < 20; i++ {
		mutations = append(mutations, put(1, fmt.Sprintf("k%02d", i), fmt.Sprintf("v%02d", i)))
	}
	apply(t, store, 1, mutations...)
	apply(t, store, 2, del(1, "k05"))

	scenarios := []struct {
		name string
		req  ScanRequest
		want []string
	}{
		{"all", ScanRequest{Table: 1, Limit: 3}, []string{"k00", "k01", "k02"}},
		{"range", ScanRequest{Table: 1, Start: []byte("k03"), End: []byte("k08")}, []string{"k03", "k04", "k06", "k07"}},
		{"open_end", ScanRequest{Table: 1, Start: []byte("k17")}, []string{"k17", "k18", "k19"}},
		{"empty_range", ScanRequest{Table: 1, Start: []byte("x")}, []string{}},
		{"other_table", ScanRequest{Table: 2}, []string{}},
	}
	for _, scene := range scenarios {
		t.Run(scene.name, func(t *testing.T) {
			kvs, err := store.Scan(ctx, scene.req)
			require.NoError(t, err)
			assert.Equal(t, scene.want, keysOf(kvs))
			for _, kv := range kvs {
				assert.Equal(t, "v"+string(kv.Key[1:]), string(kv.Value))
			}
		})
	}
	kvs, err := store.Scan(ctx, ScanRequest{Table: 1})
	require.NoError(t, err)
	assert.Len(t, kvs, 19)
}

func testScanReverse(t *testing.T, store Store) {
	ctx := context.Background()
	apply(t, store, 1, put(1, "a", "1"), put(1, "b", "2"), put(1, "c", "3"), put(1, "d", "4"))
	apply(t, store, 2, put(1, "c", "33"), del(1, "b"))

	kvs, err := store.Scan(ctx, ScanRequest{Table: 1, Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "a"}, keysOf(kvs))
	assert.Equal(t, "33", string(kvs[1].Value))

	kvs, err = store.Scan(ctx, ScanRequest{Table: 1, Reverse: true, End: []byte("d"), Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, keysOf(kvs))

	kvs, err = store.ScanAt(ctx, ScanRequest{Table: 1, Reverse: true, Start: []byte("b")}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b"}, keysOf(kvs))
	assert.Equal(t, "3", string(kvs[1].Value))
}

func testScanAt(t *testing.T, store Store) {
	ctx := context.Background()
	apply(t, store, 1, put(1, "a", "a1"), put(1, "b", "b1"))
	apply(t, store, 2, put(1, "c", "c2"), del(1, "a"))
	apply(t, store, 3, put(1, "b", "b3"))

	scenarios := []struct {
		pos  Position
		want []string
	}{
		{0, []string{}},
		{1, []string{"a=a1", "b=b1"}},
		{2, []string{"b=b1", "c=c2"}},
		{3, []string{"b=b3", "c=c2"}},
		{CurrentPosition, []string{"b=b3", "c=c2"}},
	}
	for _, scene := range scenarios {
		t.Run(fmt.Sprintf("pos_%d", scene.pos), func(t *testing.T) {
			kvs, err := store.ScanAt(ctx, ScanRequest{Table: 1}, scene.pos)
			require.NoError(t, err)
			got := make([]string, len(kvs))
			for i, kv := range kvs {
				got[i] = string(kv.Key) + "=" + string(kv.Value)
			}
			assert.Equal(t, scene.want, got)
		})
	}
}

func testTablesIsolated(t *testing.T, store Store) {
	apply(t, store, 1, put(1, "k", "one"), put(2, "k", "two"), put(1<<40, "k", "big"))
	verifyGet(t, store, 1, "k", CurrentPosition, "one", true)
	verifyGet(t, store, 2, "k", CurrentPosition, "two", true)
	verifyGet(t, store, 1<<40, "k", CurrentPosition, "big", true)
	verifyGet(t, store, 3, "k", CurrentPosition, "", false)

	kvs, err := store.Scan(context.Background(), ScanRequest{Table: 2})
	require.NoError(t, err)
	assert.Equal(t, []KV{{Key: []byte("k"), Value: []byte("two")}}, kvs)
}

func testEmptyValues(t *testing.T, store Store) {
	// secondary index entries carry everything in the key
	apply(t, store, 1, Mutation{Table: 4, Key: []byte("i1"), Value: nil}, Mutation{Table: 4, Key: []byte("i2"), Value: []byte{}})
	got, err := store.Get(context.Background(), 4, []byte("i1"))
	require.NoError(t, err)
	require.True(t, got.IsPresent())
	assert.Empty(t, got.MustGet())

	kvs, err := store.Scan(context.Background(), ScanRequest{Table: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i2"}, keysOf(kvs))
}

func testBinaryKeys(t *testing.T, store Store) {
	keys := [][]byte{{0x00}, {0x00, 0x00}, {0x00, 0x01}, {0x01}, {0xFF}, {0xFF, 0x00}, {0xFF, 0xFF}}
	var mutations []Mutation
	for i, k := range keys {
		mutations = append(mutations, Mutation{Table: 1, Key: k, Value: []byte{byte(i)}})
	}
	apply(t, store, 1, mutations...)

	kvs, err := store.Scan(context.Background(), ScanRequest{Table: 1})
	require.NoError(t, err)
	require.Len(t, kvs, len(keys))
	for i, kv := range kvs {
		assert.Equal(t, keys[i], kv.Key)
		assert.Equal(t, []byte{byte(i)}, kv.Value)
	}

	kvs, err = store.Scan(context.Background(), ScanRequest{Table: 1, Start: []byte{0x00, 0x00}, End: []byte{0x01}})
	require.NoError(t, err)
	assert.Len(t, kvs, 2)

	kvs, err = store.Scan(context.Background(), ScanRequest{Table: 1, Reverse: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	assert.Equal(t, []byte{0xFF, 0xFF}, kvs[0].Key)
	assert.Equal(t, []byte{0xFF, 0x00}, kvs[1].Key)
}

func testLargeBatch(t *testing.T, store Store) {
	const n = 5000
	mutations := make([]Mutation, 0, n)
	for _, i := range rand.Perm(n) {
		mutations = append(mutations, put(1, fmt.Sprintf("key-%05d", i), fmt.Sprintf("%d", i)))
	}
	apply(t, store, 1, mutations...)
	kvs, err := store.Scan(context.Background(), ScanRequest{Table: 1})
	require.NoError(t, err)
	require.Len(t, kvs, n)
	for i, kv := range kvs {
		assert.Equal(t, fmt.Sprintf("key-%05d", i), string(kv.Key))
	}
}

func testConcurrentReads(t *testing.T, store Store) {
	apply(t, store, 1, put(1, "k", "v1"))
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := store.GetAt(context.Background(), 1, []byte("k"), 1)
				assert.NoError(t, err)
				assert.Equal(t, []byte("v1"), got.OrElse(nil))
			}
		}()
	}
	for pos := Position(2); pos < 20; pos++ {
		apply(t, store, pos, put(1, "k", fmt.Sprintf("v%d", pos)))
	}
	wg.Wait()
	verifyGet(t, store, 1, "k", CurrentPosition, "v19", true)
}
