package timer

import (
	"context"
	"time"

	"vellum/lib/tracer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fnDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name: "fn_duration_seconds",
	Help: "Duration of individual go functions",
	Objectives: map[float64]float64{
		0.25: 0.05,
		0.50: 0.05,
		0.75: 0.05,
		0.90: 0.05,
		0.95: 0.02,
		0.99: 0.01,
	},
}, []string{"function_name"})

// Timer measures one call. Stopping it observes the latency summary, ends
// the call's span and, when the context carries a request trace, records
// the call there.
type Timer struct {
	ctx      context.Context
	funcName string
	timer    *prometheus.Timer
	span     tracer.Span
}

func (t Timer) Stop() {
	t.timer.ObserveDuration()
	t.span.End()
	record(t.ctx, t.funcName, time.Now())
}

// Start times funcName. The returned context carries the call's span; pass
// it down so nested calls become child spans.
func Start(ctx context.Context, funcName string) (context.Context, Timer) {
	span := tracer.StartSpan(ctx, funcName)
	return span.Context(), Timer{
		ctx:      ctx,
		funcName: funcName,
		timer:    prometheus.NewTimer(fnDuration.WithLabelValues(funcName)),
		span:     span,
	}
}
