package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestSessionCreatedIncrementsActiveAndCreated(t *testing.T) {
	m := New(nil)
	m.SessionCreated()
	m.SessionCreated()

	assert.Equal(t, float64(2), gaugeValue(t, m.sessionsActive))
	assert.Equal(t, float64(2), counterValue(t, m.sessionsCreated))
}

func TestSessionDestroyedDecrementsActive(t *testing.T) {
	m := New(nil)
	m.SessionCreated()
	m.SessionDestroyed(ReasonCompleted)

	assert.Equal(t, float64(0), gaugeValue(t, m.sessionsActive))
}

func TestRecordReapedIncrementsSweepsAndDestroyed(t *testing.T) {
	m := New(nil)
	m.RecordReaped(3)
	m.RecordReaped(2)

	assert.Equal(t, float64(2), counterValue(t, m.reaperSweeps))
	assert.Equal(t, float64(5), counterValue(t, m.reaperDestroyed))
}

func TestNewWithRegistryRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
