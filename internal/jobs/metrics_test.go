package jobmetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRunRecordsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, m.Run("warmup", func() (int, error) { return 4, nil }))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Run("warmup", func() (int, error) { return 9, boom }), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("warmup", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("warmup", "failure")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.items.WithLabelValues("warmup")))
	require.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastSuccess.WithLabelValues("warmup")))
}

func TestNilMetricsStillRuns(t *testing.T) {
	var m *Metrics
	called := false
	require.NoError(t, m.Run("noop", func() (int, error) {
		called = true
		return 1, nil
	}))
	require.True(t, called)
}
