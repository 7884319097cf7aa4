package timer

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStart(t *testing.T) {
	before := testutil.CollectAndCount(fnDuration)
	_, tm := Start(context.Background(), "timer_test.start")
	tm.Stop()
	// one new series for the new function name
	assert.Equal(t, before+1, testutil.CollectAndCount(fnDuration))
}

func TestTracing(t *testing.T) {
	ctx := WithTracing(context.Background())
	func() {
		ctx, outer := Start(ctx, "outer")
		defer outer.Stop()
		_, inner := Start(ctx, "inner")
		inner.Stop()
	}()

	core, logs := observer.New(zapcore.DebugLevel)
	require.NoError(t, LogTracingInfo(ctx, zap.New(core)))
	require.Equal(t, 1, logs.Len())
	msg := logs.All()[0].Message
	assert.True(t, strings.HasPrefix(msg, "====Trace====\n"))
	// events are ordered by completion
	assert.Less(t, strings.Index(msg, "inner"), strings.Index(msg, "outer"))
}

func TestLogTracingInfo_NoTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	assert.NoError(t, LogTracingInfo(context.Background(), zap.New(core)))
	assert.Equal(t, 0, logs.Len())
}
