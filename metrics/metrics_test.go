package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidvella/xsort/metrics"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := metrics.New(reg)

	m.Sorts.WithLabelValues(metrics.PathExternal).Inc()
	m.RunsCreated.Add(3)
	m.LiveRuns.Set(2)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RunsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sorts.WithLabelValues(metrics.PathExternal)))

	assert.Panics(t, func() { metrics.New(reg) }, "duplicate registration")
}

func TestNewUnregistered(t *testing.T) {
	m := metrics.New(nil)
	m.RecordsSpilled.Add(10)
	assert.Equal(t, 10.0, testutil.ToFloat64(m.RecordsSpilled))
}
