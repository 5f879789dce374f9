package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	m, err := New(registry)
	require.NoError(t, err)

	m.ConsumerDrops.WithLabelValues("gate", "ml-worker").Add(3)
	m.AttendanceEvents.Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConsumerDrops.WithLabelValues("gate", "ml-worker")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttendanceEvents))

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_DuplicateRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()

	_, err := New(registry)
	require.NoError(t, err)

	_, err = New(registry)
	assert.Error(t, err)
}
