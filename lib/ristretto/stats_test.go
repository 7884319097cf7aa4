package ristretto

import (
	"testing"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	c, err := ristretto.NewCache(&ristretto.Config{NumCounters: 100, MaxCost: 1 << 10, BufferItems: 64, Metrics: true})
	require.NoError(t, err)
	defer c.Close()

	c.Set("k", "v", 1)
	c.Wait()
	_, found := c.Get("k")
	assert.True(t, found)
	_, found = c.Get("missing")
	assert.False(t, found)

	Report("test", c)
	assert.Equal(t, float64(1), testutil.ToFloat64(ristrettoStats.WithLabelValues("test", "hits")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ristrettoStats.WithLabelValues("test", "misses")))
}

func TestReportPeriodically_Stops(t *testing.T) {
	c, err := ristretto.NewCache(&ristretto.Config{NumCounters: 100, MaxCost: 1 << 10, BufferItems: 64, Metrics: true})
	require.NoError(t, err)
	defer c.Close()
	stop := make(chan struct{})
	ReportPeriodically("periodic", c, time.Millisecond, stop)
	close(stop)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(ristrettoStats.WithLabelValues("periodic", "ratio")) == 0
	}, time.Second, 10*time.Millisecond)
}
