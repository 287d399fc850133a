package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()
	ok := map[string]string{"result": "ok"}
	failed := map[string]string{"result": "failed"}

	r.IncrementCounter(DispatchTotal, ok, "dispatch attempts")
	r.IncrementCounter(DispatchTotal, ok, "dispatch attempts")
	r.IncrementCounter(DispatchTotal, failed, "dispatch attempts")
	r.AddToCounter(SendLogAppends, 2.5, nil, "")

	assert.Equal(t, 2.0, r.CounterValue(DispatchTotal, ok))
	assert.Equal(t, 1.0, r.CounterValue(DispatchTotal, failed))
	assert.Equal(t, 2.5, r.CounterValue(SendLogAppends, nil))
	assert.Equal(t, 0.0, r.CounterValue("missing", nil))
}

func TestRegistry_CounterKeepsLabelCopy(t *testing.T) {
	r := NewRegistry()
	labels := map[string]string{"result": "ok"}
	r.IncrementCounter(DispatchTotal, labels, "")
	labels["result"] = "mutated"

	counters := r.GetAllMetrics()["counters"].(map[string]Metric)
	require.Contains(t, counters, "dispatch_total{result=ok}")
	assert.Equal(t, "ok", counters["dispatch_total{result=ok}"].Labels["result"])
}

func TestRegistry_RecordTimer(t *testing.T) {
	r := NewRegistry()

	for i := 1; i <= 20; i++ {
		r.RecordTimer(DispatchDuration, time.Duration(i)*time.Millisecond, nil, "")
	}

	timers := r.GetAllMetrics()["timers"].(map[string]TimerMetric)
	timer := timers[DispatchDuration]
	assert.Equal(t, int64(20), timer.Count)
	assert.Equal(t, 1.0, timer.Min)
	assert.Equal(t, 20.0, timer.Max)
	assert.Equal(t, 10.5, timer.Average)
	assert.Equal(t, 20.0, timer.P95)
	assert.Equal(t, 20.0, timer.P99)
	assert.Equal(t, int64(20), r.TimerCount(DispatchDuration, nil))
}

func TestRegistry_TimerSampleWindow(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < maxTimerSamples+50; i++ {
		r.RecordTimer(DispatchDuration, time.Millisecond, nil, "")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	assert.Len(t, r.timers[DispatchDuration].samples, maxTimerSamples)
	assert.Equal(t, int64(maxTimerSamples+50), r.timers[DispatchDuration].Count)
}

func TestRegistry_SetGauge(t *testing.T) {
	r := NewRegistry()
	pending := map[string]string{"status": "pending"}

	r.SetGauge(QueueItems, 3, pending, "items by status")
	r.SetGauge(QueueItems, 1, pending, "items by status")

	assert.Equal(t, 1.0, r.GaugeValue(QueueItems, pending))
	assert.Equal(t, 0.0, r.GaugeValue(QueueItems, map[string]string{"status": "sent"}))
}

func TestMetricKey(t *testing.T) {
	tests := []struct {
		name   string
		labels map[string]string
		want   string
	}{
		{"no labels", nil, "dispatch_total"},
		{"one label", map[string]string{"result": "ok"}, "dispatch_total{result=ok}"},
		{"sorted labels", map[string]string{"source": "cli", "result": "ok"}, "dispatch_total{result=ok,source=cli}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				assert.Equal(t, tt.want, metricKey(DispatchTotal, tt.labels))
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 0.95))
	assert.Equal(t, 5.0, percentile([]float64{5}, 0.99))
	assert.Equal(t, 9.0, percentile([]float64{9, 1, 5, 3, 7, 2, 8, 4, 6, 0}, 0.95))
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter(DispatchTotal, nil, "")
	r.SetGauge(QueueItems, 1, nil, "")
	r.RecordTimer(DispatchDuration, time.Millisecond, nil, "")

	r.Reset()

	all := r.GetAllMetrics()
	assert.Empty(t, all["counters"])
	assert.Empty(t, all["timers"])
	assert.Empty(t, all["gauges"])
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.IncrementCounter(HTTPRequests, map[string]string{"path": "/api/queue"}, "")
			r.RecordTimer(HTTPRequestDuration, time.Millisecond, nil, "")
			_ = r.GetAllMetrics()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100.0, r.CounterValue(HTTPRequests, map[string]string{"path": "/api/queue"}))
}

func TestGlobalRegistry(t *testing.T) {
	assert.Same(t, globalRegistry, GetRegistry())

	labels := map[string]string{"test": "global"}
	before := GetRegistry().CounterValue(StoreFallbacks, labels)
	IncrementCounter(StoreFallbacks, labels, "")
	AddToCounter(StoreFallbacks, 2, labels, "")
	assert.Equal(t, before+3, GetRegistry().CounterValue(StoreFallbacks, labels))

	SetGauge(SendLogEntries, 7, labels, "")
	assert.Equal(t, 7.0, GetRegistry().GaugeValue(SendLogEntries, labels))

	RecordTimer(DispatchDuration, time.Millisecond, labels, "")
	assert.NotNil(t, GetAllMetrics()["timers"])
}
