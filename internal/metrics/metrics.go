package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All metrics are low-cardinality: floor ids are bounded by the
// building, camera ids never appear as labels.

var (
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evac_cycle_duration_seconds",
		Help:    "Wall time of one full pipeline cycle across all floors",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 30, 45, 60},
	})

	CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evac_cycles_skipped_total",
		Help: "Ticks skipped because the previous cycle was still running",
	})

	FloorCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evac_floor_cycles_total",
		Help: "Per-floor cycle outcomes",
	}, []string{"floor", "result"}) // result: ok, error

	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evac_captures_total",
		Help: "Frame capture attempts by outcome",
	}, []string{"result"}) // "success", "fail"

	CamerasDisabled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evac_cameras_disabled_total",
		Help: "Cameras auto-disabled after consecutive capture failures",
	})

	AILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evac_ai_latency_ms",
		Help:    "Hazard detector latency in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 15000, 25000},
	}, []string{"detector"}) // "local", "cloud"

	AIFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evac_ai_failures_total",
		Help: "Hazard detector failures by detector",
	}, []string{"detector"})

	RoutesComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evac_routes_computed_total",
		Help: "Total evacuation routes produced",
	})

	EmergenciesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evac_emergencies_total",
		Help: "Cycles that crossed a threshold into emergency mode",
	})

	RadioTransmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evac_radio_transmissions_total",
		Help: "Radio fallback transmissions by outcome",
	}, []string{"result"})

	RadioDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evac_radio_duration_seconds",
		Help:    "Modulator run time per transmission",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 30},
	})

	WSSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evac_ws_subscribers",
		Help: "Currently registered display screens",
	})

	CloudSyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evac_cloud_sync_runs_total",
		Help: "Cloud replication runs by outcome",
	}, []string{"result"})
)

func RecordAILatency(detector string, latencyMs float64) {
	AILatency.WithLabelValues(detector).Observe(latencyMs)
}

func RecordCapture(ok bool) {
	if ok {
		CapturesTotal.WithLabelValues("success").Inc()
	} else {
		CapturesTotal.WithLabelValues("fail").Inc()
	}
}

func RecordRadio(ok bool, seconds float64) {
	result := "success"
	if !ok {
		result = "fail"
	}
	RadioTransmissions.WithLabelValues(result).Inc()
	RadioDuration.Observe(seconds)
}
