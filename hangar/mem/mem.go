package mem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vellum/hangar"
	"vellum/lib/timer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/mo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var statsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "hangar_mem_stats",
	Help: "Stats about the hangar MemDB",
}, []string{"metric"})

type version struct {
	pos     hangar.Position
	value   []byte
	deleted bool
}

// memTable keeps every key of a table in sorted order along with all of its
// versions, oldest first.
type memTable struct {
	keys     []string
	versions map[string][]version
}

func (t *memTable) set(key string, v version) int {
	vs, ok := t.versions[key]
	if !ok {
		i := sort.SearchStrings(t.keys, key)
		t.keys = append(t.keys, "")
		copy(t.keys[i+1:], t.keys[i:])
		t.keys[i] = key
	}
	t.versions[key] = append(vs, v)
	return len(v.value)
}

// at returns the version of key visible at pos.
func (t *memTable) at(key string, pos hangar.Position) (version, bool) {
	vs := t.versions[key]
	i := sort.Search(len(vs), func(i int) bool { return vs[i].pos > pos })
	if i == 0 {
		return version{}, false
	}
	return vs[i-1], true
}

type MemDB struct {
	lock    sync.RWMutex
	tables  map[hangar.TableID]*memTable
	applied atomic.Uint64

	versions atomic.Int64
	rawSize  atomic.Int64

	closeCh chan int
	closeWg sync.WaitGroup
}

var _ hangar.Store = (*MemDB)(nil)

func NewHangar() *MemDB {
	ret := &MemDB{
		tables:  make(map[hangar.TableID]*memTable),
		closeCh: make(chan int),
	}
	ret.startReportStats()
	return ret
}

func (m *MemDB) startReportStats() {
	m.closeWg.Add(1)
	go func() {
		interval := time.Second * 10
		t := time.NewTimer(interval)
		defer m.closeWg.Done()
		defer t.Stop()
		for {
			select {
			case _, ok := <-m.closeCh:
				if !ok {
					zap.L().Info("report stats goroutine got closing signal, returning...")
					return
				}
			case <-t.C:
				statsGauge.WithLabelValues("total_versions").Set(float64(m.versions.Load()))
				statsGauge.WithLabelValues("total_raw_data_size").Set(float64(m.rawSize.Load()))
				statsGauge.WithLabelValues("applied_position").Set(float64(m.applied.Load()))
				t.Reset(interval)
			}
		}
	}()
}

func (m *MemDB) AppliedPosition() hangar.Position {
	return hangar.Position(m.applied.Load())
}

func (m *MemDB) Get(ctx context.Context, table hangar.TableID, key []byte) (mo.Option[[]byte], error) {
	return m.GetAt(ctx, table, key, hangar.CurrentPosition)
}

func (m *MemDB) GetAt(ctx context.Context, table hangar.TableID, key []byte, pos hangar.Position) (mo.Option[[]byte], error) {
	_, t := timer.Start(ctx, "hangar.mem.get")
	defer t.Stop()
	m.lock.RLock()
	defer m.lock.RUnlock()
	tbl, ok := m.tables[table]
	if !ok {
		return mo.None[[]byte](), nil
	}
	v, ok := tbl.at(string(key), pos)
	if !ok || v.deleted {
		return mo.None[[]byte](), nil
	}
	return mo.Some(clone(v.value)), nil
}

func (m *MemDB) Scan(ctx context.Context, req hangar.ScanRequest) ([]hangar.KV, error) {
	return m.ScanAt(ctx, req, hangar.CurrentPosition)
}

func (m *MemDB) ScanAt(ctx context.Context, req hangar.ScanRequest, pos hangar.Position) ([]hangar.KV, error) {
	_, t := timer.Start(ctx, "hangar.mem.scan")
	defer t.Stop()
	m.lock.RLock()
	defer m.lock.RUnlock()
	ret := make([]hangar.KV, 0)
	tbl, ok := m.tables[req.Table]
	if !ok {
		return ret, nil
	}
	lo := sort.SearchStrings(tbl.keys, string(req.Start))
	hi := len(tbl.keys)
	if len(req.End) > 0 {
		hi = sort.SearchStrings(tbl.keys, string(req.End))
	}
	visit := func(key string) {
		if v, ok := tbl.at(key, pos); ok && !v.deleted {
			ret = append(ret, hangar.KV{Key: []byte(key), Value: clone(v.value)})
		}
	}
	if req.Reverse {
		for i := hi - 1; i >= lo && !req.Full(ret); i-- {
			visit(tbl.keys[i])
		}
	} else {
		for i := lo; i < hi && !req.Full(ret); i++ {
			visit(tbl.keys[i])
		}
	}
	return ret, nil
}

func (m *MemDB) Apply(ctx context.Context, batch hangar.Batch) error {
	_, t := timer.Start(ctx, "hangar.mem.apply")
	defer t.Stop()
	m.lock.Lock()
	defer m.lock.Unlock()
	if err := hangar.ValidateBatch(batch, m.AppliedPosition()); err != nil {
		return err
	}
	var size int64
	mutations := hangar.MergeMutations(batch.Mutations)
	for _, mu := range mutations {
		tbl, ok := m.tables[mu.Table]
		if !ok {
			tbl = &memTable{versions: make(map[string][]version)}
			m.tables[mu.Table] = tbl
		}
		size += int64(len(mu.Key) + tbl.set(string(mu.Key), version{
			pos:     batch.Position,
			value:   clone(mu.Value),
			deleted: mu.Delete,
		}))
	}
	m.versions.Add(int64(len(mutations)))
	m.rawSize.Add(size)
	m.applied.Store(uint64(batch.Position))
	return nil
}

func (m *MemDB) Close() error {
	select {
	case <-m.closeCh:
		return fmt.Errorf("memdb already closed")
	default:
	}
	close(m.closeCh)
	m.closeWg.Wait()
	m.lock.Lock()
	m.tables = make(map[hangar.TableID]*memTable)
	m.lock.Unlock()
	return nil
}

func (m *MemDB) Teardown() error {
	return m.Close()
}

func clone(b []byte) []byte {
	ret := make([]byte, len(b))
	copy(ret, b)
	return ret
}
