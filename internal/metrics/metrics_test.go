package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"computeq/pkg/types"
)

func TestNewCollector(t *testing.T) {
	// Reset the Prometheus registry to avoid duplicate registration
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	c := NewCollector()

	assert.NotNil(t, c)
	assert.NotNil(t, c.submitsTotal)
	assert.NotNil(t, c.getsTotal)
	assert.NotNil(t, c.jobsEnqueued)
	assert.NotNil(t, c.jobsCompleted)
	assert.NotNil(t, c.jobsPending)
	assert.NotNil(t, c.kernelLatency)
	assert.NotNil(t, c.clientsRegistered)
}

func TestRecordSubmit(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	c := NewCollector()

	assert.NotPanics(t, func() {
		c.RecordSubmit(types.Blocking, types.StatusSuccess)
		c.RecordSubmit(types.NonBlocking, types.StatusNotFinished)
		c.RecordSubmit(types.NonBlocking, types.StatusInvalidInput)
	})
}

func TestRecordGet(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	c := NewCollector()

	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			c.RecordGet(types.StatusNotFinished)
		}
		c.RecordGet(types.StatusSuccess)
	})
}

func TestGaugesAndCounters(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	c := NewCollector()

	assert.NotPanics(t, func() {
		c.RecordEnqueue()
		c.RecordCompleted(0.002)
		c.SetPending(3)
		c.SetClients(2)
		c.SetPending(0)
	})
}

func TestNilCollectorIsSafe(t *testing.T) {
	// Components run without metrics in tests; every method must accept
	// a nil receiver.
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordSubmit(types.Blocking, types.StatusSuccess)
		c.RecordGet(types.StatusSuccess)
		c.RecordEnqueue()
		c.RecordCompleted(0.1)
		c.SetPending(1)
		c.SetClients(1)
	})
}
