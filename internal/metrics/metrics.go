package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "atmosync_"

// Metrics holds the sync activity collectors. A nil *Metrics is valid and
// records nothing, so components can run unobserved in tests.
type Metrics struct {
	measuresIngested prometheus.Counter
	measuresSkipped  prometheus.Counter
	deviceFetches    prometheus.Counter
	fetchFailures    prometheus.Counter
	tokenRefreshes   prometheus.Counter
	lastSyncUnix     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		measuresIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "measures_ingested_total",
			Help: "Measures written to the store",
		}),
		measuresSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "measures_skipped_total",
			Help: "Measures dropped as duplicates of stored samples",
		}),
		deviceFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "device_fetches_total",
			Help: "Measurement windows fetched from the cloud API",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "fetch_failures_total",
			Help: "Device fetches that ended in an error",
		}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "token_refreshes_total",
			Help: "OAuth token refresh round trips",
		}),
		lastSyncUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_sync_unix",
			Help: "Unix time of the last completed sync pass",
		}),
	}

	reg.MustRegister(
		m.measuresIngested,
		m.measuresSkipped,
		m.deviceFetches,
		m.fetchFailures,
		m.tokenRefreshes,
		m.lastSyncUnix,
	)
	return m
}

func (m *Metrics) MeasureIngested() {
	if m != nil {
		m.measuresIngested.Inc()
	}
}

func (m *Metrics) MeasureSkipped() {
	if m != nil {
		m.measuresSkipped.Inc()
	}
}

func (m *Metrics) DeviceFetch() {
	if m != nil {
		m.deviceFetches.Inc()
	}
}

func (m *Metrics) FetchFailure() {
	if m != nil {
		m.fetchFailures.Inc()
	}
}

func (m *Metrics) TokenRefresh() {
	if m != nil {
		m.tokenRefreshes.Inc()
	}
}

func (m *Metrics) SyncCompleted(unix int64) {
	if m != nil {
		m.lastSyncUnix.Set(float64(unix))
	}
}
