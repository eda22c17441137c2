package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CreationsStarted counts creation attempts accepted by the orchestrator.
	CreationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metoken_creations_started_total",
		Help: "Total number of MeToken creation attempts started",
	})

	// CreationsCompleted counts terminal creation outcomes by result.
	CreationsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metoken_creations_completed_total",
		Help: "Total number of MeToken creation attempts reaching a terminal state",
	}, []string{"outcome"})

	// SubmissionFailures counts user operation submission failures by kind.
	SubmissionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metoken_submission_failures_total",
		Help: "Total number of user operation submission failures by classified kind",
	}, []string{"kind"})

	// GasFallbacks counts plain resubmissions after a paymaster failure.
	GasFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metoken_gas_fallbacks_total",
		Help: "Total number of self-funded resubmissions after sponsorship failure",
	})

	// ApprovalsGranted counts deposit asset approvals sent, by spender role.
	ApprovalsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metoken_approvals_granted_total",
		Help: "Total number of deposit asset approvals submitted",
	}, []string{"spender"})

	// ConfirmationPollAttempts observes how many registry polls a timed-out
	// operation needed before its MeToken was found.
	ConfirmationPollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "metoken_confirmation_poll_attempts",
		Help:    "Registry poll attempts needed to resolve a timed-out creation",
		Buckets: []float64{1, 2, 3, 5, 10, 15, 20, 30},
	})

	// PendingOperations tracks unresolved ledger entries.
	PendingOperations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "metoken_pending_operations",
		Help: "Current number of unresolved pending operations in the ledger",
	})

	// RecoveryRuns counts reconciler sweeps by result.
	RecoveryRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metoken_recovery_runs_total",
		Help: "Total number of recovery sweeps over the pending ledger",
	}, []string{"result"})

	// WebSocketConnections tracks live creation state stream subscribers.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "metoken_websocket_connections",
		Help: "Current number of connected creation state stream clients",
	})

	// NATSConnectionStatus is 1 when the NATS connection is up, 0 otherwise.
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "metoken_nats_connection_status",
		Help: "NATS connection status (1 = connected, 0 = disconnected)",
	})

	// HTTPRequestDuration observes API handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metoken_http_request_duration_seconds",
		Help:    "HTTP request latency by path and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status"})
)
