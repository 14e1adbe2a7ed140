package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncRefresh(RefreshSucceeded)
	m.IncRefresh(RefreshFailed)
	m.IncRefresh(RefreshFailed)
	m.IncOperation("put_object", 201)
	m.ObserveExchange(25*time.Millisecond, nil)
	m.ObserveExchange(time.Second, errors.New("boom"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.refreshTotal.WithLabelValues(RefreshSucceeded)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.refreshTotal.WithLabelValues(RefreshFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operationsTotal.WithLabelValues("put_object", "201")), 0)

	count, err := testutil.GatherAndCount(reg, "fridge_sts_exchange_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncRefresh(RefreshSkipped)
		m.IncOperation("get_object", 404)
		m.ObserveExchange(time.Millisecond, nil)
	})
}
