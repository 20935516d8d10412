package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Full sync outcomes recorded in the status label.
const (
	statusOK         = "ok"
	statusFailed     = "failed"
	statusInProgress = "in_progress"
	statusOffline    = "offline"
)

type metrics struct {
	pending      prometheus.Gauge
	delivered    prometheus.Counter
	failed       prometheus.Counter
	deadLettered prometheus.Counter
	fullSyncs    *prometheus.CounterVec
	lastSync     prometheus.Gauge
}

// newMetrics creates the syncer collectors on reg. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "habitsync_sync_pending_changes",
			Help: "Changes waiting in the durable sync queue",
		}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "habitsync_sync_delivered_total",
			Help: "Changes acknowledged by the remote",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "habitsync_sync_failed_attempts_total",
			Help: "Delivery attempts that failed and were kept for retry",
		}),
		deadLettered: factory.NewCounter(prometheus.CounterOpts{
			Name: "habitsync_sync_dead_lettered_total",
			Help: "Changes moved to the dead-letter queue",
		}),
		fullSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "habitsync_full_sync_total",
			Help: "Full sync attempts by outcome",
		}, []string{"status"}),
		lastSync: factory.NewGauge(prometheus.GaugeOpts{
			Name: "habitsync_last_sync_timestamp_seconds",
			Help: "Unix time of the last successful full sync",
		}),
	}
}
