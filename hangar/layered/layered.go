package layered

import (
	"context"

	"vellum/hangar"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/mo"
)

/*
	layered is a Reader composed of two layers. The overlay holds a handful of
	tables that only live for one query (the results of common table
	expressions); every other table is read from the base store.

	Reads of an overlay table always see the overlay's latest state: it is
	built for the query being run, so the query's read position does not apply
	to it. Reads of any other table go to the base at the requested position.
*/

type layered struct {
	base    hangar.Reader
	overlay hangar.Reader
	tables  map[hangar.TableID]struct{}
}

var _ hangar.Reader = (*layered)(nil)

var layeredReads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hangar_layered_reads",
		Help: "Number of reads served by each layer of a layered reader",
	}, []string{"layer"},
)

func NewReader(base, overlay hangar.Reader, tables ...hangar.TableID) hangar.Reader {
	l := &layered{base: base, overlay: overlay, tables: make(map[hangar.TableID]struct{}, len(tables))}
	for _, t := range tables {
		l.tables[t] = struct{}{}
	}
	return l
}

func (l *layered) layer(table hangar.TableID) (hangar.Reader, bool) {
	if _, ok := l.tables[table]; ok {
		layeredReads.WithLabelValues("overlay").Inc()
		return l.overlay, true
	}
	layeredReads.WithLabelValues("base").Inc()
	return l.base, false
}

func (l *layered) Get(ctx context.Context, table hangar.TableID, key []byte) (mo.Option[[]byte], error) {
	r, _ := l.layer(table)
	return r.Get(ctx, table, key)
}

func (l *layered) GetAt(ctx context.Context, table hangar.TableID, key []byte, pos hangar.Position) (mo.Option[[]byte], error) {
	r, overlay := l.layer(table)
	if overlay {
		return r.Get(ctx, table, key)
	}
	return r.GetAt(ctx, table, key, pos)
}

func (l *layered) Scan(ctx context.Context, req hangar.ScanRequest) ([]hangar.KV, error) {
	r, _ := l.layer(req.Table)
	return r.Scan(ctx, req)
}

func (l *layered) ScanAt(ctx context.Context, req hangar.ScanRequest, pos hangar.Position) ([]hangar.KV, error) {
	r, overlay := l.layer(req.Table)
	if overlay {
		return r.Scan(ctx, req)
	}
	return r.ScanAt(ctx, req, pos)
}
