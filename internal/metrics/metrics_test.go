package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWithRegistry("uidriver_test", reg, nil), reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if metricMatches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func metricMatches(m *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		got[l.GetName()] = l.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestStepFinishedCountsByKindAndResult(t *testing.T) {
	c, reg := newTestCollector(t)

	c.StepFinished("action", "click login", 10*time.Millisecond, nil)
	c.StepFinished("wait", "user visible", 20*time.Millisecond, nil)
	c.StepFinished("wait", "user visible", 20*time.Millisecond, errors.New("timeout"))

	assert.Equal(t, 1.0, counterValue(t, reg, "uidriver_test_steps_total",
		map[string]string{"kind": "action", "result": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "uidriver_test_steps_total",
		map[string]string{"kind": "wait", "result": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "uidriver_test_steps_total",
		map[string]string{"kind": "wait", "result": "error"}))
}

func TestWaitTimeoutsLabeled(t *testing.T) {
	c, reg := newTestCollector(t)

	c.WaitTimedOut("upload to finish", 5*time.Second)
	c.WaitTimedOut("upload to finish", 5*time.Second)

	assert.Equal(t, 2.0, counterValue(t, reg, "uidriver_test_wait_timeouts_total",
		map[string]string{"label": "upload to finish"}))
}

func TestScenarioResults(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordScenario("login", nil)
	c.RecordScenario("login", errors.New("boom"))

	assert.Equal(t, 1.0, counterValue(t, reg, "uidriver_test_scenarios_total",
		map[string]string{"scenario": "login", "result": "pass"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "uidriver_test_scenarios_total",
		map[string]string{"scenario": "login", "result": "fail"}))
}

func TestTransferBytesIgnoresNonPositive(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordTransferBytes(1024)
	c.RecordTransferBytes(0)
	c.RecordTransferBytes(-5)

	assert.Equal(t, 1024.0, counterValue(t, reg, "uidriver_test_transfer_substituted_bytes_total", nil))
}
