package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_DefaultNamespace(t *testing.T) {
	c := NewCollector("")
	require.NotNil(t, c.Registry())

	c.RecordRegistration(nil)
	families, err := c.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["teepool_registry_registrations_total"])
	assert.True(t, names["teepool_registry_operators"])
}

func TestCollector_Registrations(t *testing.T) {
	c := NewCollector("test")

	c.RecordRegistration(nil)
	c.RecordRegistration(nil)
	c.RecordRegistration(errors.New("duplicate"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.registrations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.registrations.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.operators))
}

func TestCollector_PhaseGauges(t *testing.T) {
	c := NewCollector("test")

	c.RecordTransition("init_creation", "", "creation")
	c.RecordTransition("finalize_creation", "creation", "executing")
	c.RecordTransition("deposit", "executing", "executing")
	c.RecordTransition("challenge_executor", "executing", "challenge_executor")

	assert.Equal(t, 0.0, testutil.ToFloat64(c.pools.WithLabelValues("creation")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.pools.WithLabelValues("executing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pools.WithLabelValues("challenge_executor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("deposit", "executing", "executing")))
}

func TestCollector_RejectionsCrashesSweeps(t *testing.T) {
	c := NewCollector("test")

	c.RecordRejection("withdraw", "unauthorized caller")
	c.RecordCrash("challenge_executor")
	c.RecordSweep(3*time.Millisecond, 2, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("withdraw", "unauthorized caller")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.crashes.WithLabelValues("challenge_executor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sweeps))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sweepCrashed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sweepFailures))
}

func TestNoOpCollector(t *testing.T) {
	var r Recorder = NoOpCollector{}
	r.RecordRegistration(nil)
	r.RecordTransition("op", "a", "b")
	r.RecordRejection("op", "x")
	r.RecordCrash("a")
	r.RecordSweep(time.Second, 1, 1)
}
