package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestsTotal counts HTTP requests by method, route pattern and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cms_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// IdentityResolutions counts per-request identity outcomes.
	// outcome is "authenticated" or the anonymous reason ("none" for no credential).
	IdentityResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_identity_resolutions_total",
			Help: "Identity resolutions by outcome",
		},
		[]string{"outcome"},
	)

	// GateDecisions counts authorization gate results per operation.
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_gate_decisions_total",
			Help: "Authorization gate decisions",
		},
		[]string{"operation", "result"},
	)

	// SessionEvents counts lifecycle operations by action and result.
	SessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_session_events_total",
			Help: "Session lifecycle events",
		},
		[]string{"action", "result"},
	)

	// RevocationLookups counts where revocation answers came from: cache_hit, ledger or error.
	RevocationLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_revocation_lookups_total",
			Help: "Revocation lookups by source",
		},
		[]string{"source"},
	)

	// PurgedRows counts rows removed by the expiry purge, by table.
	PurgedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_purged_rows_total",
			Help: "Rows removed by the expiry purge",
		},
		[]string{"table"},
	)

	// AuditEventsDropped counts audit events discarded because the buffer was full.
	AuditEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cms_audit_events_dropped_total",
			Help: "Audit events dropped on a full buffer",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		IdentityResolutions,
		GateDecisions,
		SessionEvents,
		RevocationLookups,
		PurgedRows,
		AuditEventsDropped,
	)
}
