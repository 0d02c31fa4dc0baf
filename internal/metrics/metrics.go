package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "modsvc_presence_online_users",
	Help: "Number of users with at least one live connection",
})

var OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "modsvc_presence_open_connections",
	Help: "Number of live realtime connections",
})

var PresenceWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modsvc_presence_write_failures_total",
	Help: "Persisted presence writes that failed and were dropped",
})

var PresenceEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modsvc_presence_events_dropped_total",
	Help: "Presence transitions dropped because the write queue was full",
})

var BroadcastsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modsvc_broadcasts_sent_total",
	Help: "Realtime events queued to connections, by event name",
}, []string{"event"})

var BroadcastOverflow = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modsvc_broadcast_overflow_total",
	Help: "Realtime events dropped because a connection buffer was full",
}, []string{"event"})

var ModerationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modsvc_moderation_decisions_total",
	Help: "Moderation decisions by resulting status and outcome",
}, []string{"status", "outcome"})

var ReportActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modsvc_report_actions_total",
	Help: "Processed reports by enforcement action and outcome",
}, []string{"action", "outcome"})

var AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modsvc_audit_write_failures_total",
	Help: "Audit log entries that could not be written",
})

var DecisionEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modsvc_decision_events_total",
	Help: "Decision events handed to the message queue, by outcome",
}, []string{"outcome"})

var ArchiveOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modsvc_archive_operations_total",
	Help: "Object storage calls made by the audit archive, by operation and outcome",
}, []string{"op", "outcome"})

var ArchiveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "modsvc_archive_operation_seconds",
	Help:    "Latency of object storage calls made by the audit archive",
	Buckets: prometheus.DefBuckets,
}, []string{"op"})
