package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotswap-go/monitor"
)

func TestCollectorRecordsMonitorCounters(t *testing.T) {
	c := New(DefaultConfig())

	c.Inc(monitor.MetricPolls, nil)
	c.Inc(monitor.MetricPolls, nil)
	c.Add(monitor.MetricDeletedFiles, 3, nil)
	c.Inc(monitor.MetricTransitions, map[string]string{"state": monitor.StateActive})
	c.Inc(monitor.MetricCallbackFailures, map[string]string{"key": "reload"})

	assert.Equal(t, float64(2), testutil.ToFloat64(c.counters[monitor.MetricPolls]))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.counters[monitor.MetricDeletedFiles]))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.counters[monitor.MetricTransitions].WithLabelValues(monitor.StateActive)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.counters[monitor.MetricCallbackFailures].WithLabelValues("reload")))
}

func TestCollectorIgnoresUnknownAndBadLabels(t *testing.T) {
	c := New(DefaultConfig())
	assert.NotPanics(t, func() {
		c.Inc("nope_total", nil)
		c.Inc(monitor.MetricTransitions, map[string]string{"wrong": "x"})
		c.Inc(monitor.MetricPolls, map[string]string{"extra": "x"})
	})
	assert.Equal(t, 0, testutil.CollectAndCount(c.counters[monitor.MetricPolls]))
	assert.Equal(t, 0, testutil.CollectAndCount(c.counters[monitor.MetricTransitions]))
}

func TestCollectorObserveReload(t *testing.T) {
	c := New(DefaultConfig())
	c.ObserveReload("success", 20*time.Millisecond)
	c.ObserveReload("host_error", time.Second)
	c.ObserveReload("success", 30*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.reloads.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.reloads.WithLabelValues("host_error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.reloadDuration))
}

func TestCollectorHandler(t *testing.T) {
	c := New(DefaultConfig())
	c.Inc(monitor.MetricChanges, nil)
	c.SetEventClients(2)
	c.RecordEventPublished()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hotswap_monitor_changes_total 1")
	assert.Contains(t, string(body), "hotswap_event_clients 2")
	assert.Contains(t, string(body), "hotswap_events_published_total 1")
}
