package jobmetrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value returns the sample of family name whose labels contain all of want.
func value(t *testing.T, reg *prometheus.Registry, name string, want ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metrics:
		for _, m := range fam.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			joined := strings.Join(labels, ",")
			for _, w := range want {
				if !strings.Contains(joined, w) {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("no sample %s%v", name, want)
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	boom := errors.New("boom")

	assert.NoError(t, m.Track("warmup").End(nil))
	assert.ErrorIs(t, m.Track("warmup").End(boom), boom)

	assert.Equal(t, 1.0, value(t, reg, "stockroom_jobs_total", "job=warmup", "status=success"))
	assert.Equal(t, 1.0, value(t, reg, "stockroom_jobs_total", "job=warmup", "status=failure"))
	assert.Equal(t, 1.0, value(t, reg, "stockroom_jobs_failures_total", "job=warmup"))
}

func TestNilMetricsAreInert(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Track("x").End(nil))
	m.SetInventory(InventorySnapshot{TotalItems: 1})
}

func TestSetInventory(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SetInventory(InventorySnapshot{TotalItems: 12, TotalValue: 3400, LowStockItems: 2, OutOfStockItems: 1})

	assert.Equal(t, 12.0, value(t, reg, "stockroom_inventory", "measure=items"))
	assert.Equal(t, 3400.0, value(t, reg, "stockroom_inventory", "measure=value"))
	assert.Equal(t, 2.0, value(t, reg, "stockroom_inventory", "measure=low_stock"))
	assert.Equal(t, 1.0, value(t, reg, "stockroom_inventory", "measure=out_of_stock"))
}
