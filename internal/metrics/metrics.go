package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciler and presence counters. Registered on the default registry and
// exposed via /metrics.
var (
	SyncUpdatesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deck_sync_updates_applied_total",
		Help: "Upstream deck updates merged into local state.",
	})
	SyncUpdatesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deck_sync_updates_rejected_total",
		Help: "Upstream deck updates rejected as stale or regressive.",
	})
	SyncUpdatesDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deck_sync_updates_deduped_total",
		Help: "Upstream deck updates dropped by signature de-duplication.",
	})
	SyncFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deck_sync_fetch_errors_total",
		Help: "Upstream deck fetches that failed after retry.",
	})
	PresenceMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_messages_dropped_total",
		Help: "Presence messages dropped as duplicates or stale sequences.",
	})
	PresenceMessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_messages_delivered_total",
		Help: "Presence messages fanned out to peers.",
	})
)
