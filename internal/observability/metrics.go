package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the prediction engine.
type Metrics struct {
	// --- Core Processing ---
	CoreCommandsApplied  *prometheus.CounterVec
	CoreCommandsRejected *prometheus.CounterVec
	CoreCommandDuration  *prometheus.HistogramVec
	CoreJournals         *prometheus.CounterVec
	CoreSequence         prometheus.Gauge
	ProcessorQueueDepth  prometheus.Gauge

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge

	// --- Rounds & Settlement ---
	CurrentEpoch       prometheus.Gauge
	RoundsStarted      prometheus.Counter
	RoundsSettled      *prometheus.CounterVec
	SettlementResidual prometheus.Gauge
	AmountWagered      *prometheus.CounterVec
	AmountPaid         *prometheus.CounterVec
	TreasuryBalance    prometheus.Gauge

	// --- Oracle ---
	OracleReads     *prometheus.CounterVec
	OracleWatermark prometheus.Gauge

	// --- Transfers ---
	TransferFailures *prometheus.CounterVec

	// --- Persistence ---
	PersistCommits       prometheus.Counter
	PersistEventsWritten prometheus.Counter
	PersistCommitDur     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec

	// --- Ingestion & Fan-out ---
	IngestMessages *prometheus.CounterVec
	PublishDrops   prometheus.Counter
	StreamClients  prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on reg. Tests pass a fresh prometheus.NewRegistry()
// so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.00001, 0.00005, 0.0001, 0.00025, 0.0005,
		0.001, 0.0025, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5,
	}

	return &Metrics{
		// Core Processing
		CoreCommandsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_core_commands_applied_total",
			Help: "Commands committed by core",
		}, []string{"command_type"}),

		CoreCommandsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_core_commands_rejected_total",
			Help: "Commands rejected, by error kind and reason",
		}, []string{"command_type", "kind", "reason"}),

		CoreCommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "predict_core_command_duration_seconds",
			Help:    "Time to validate, commit and apply one command (oracle and transfer included)",
			Buckets: latencyBuckets,
		}, []string{"command_type"}),

		CoreJournals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "predict_core_sequence",
			Help: "Last assigned event sequence",
		}),

		ProcessorQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "predict_processor_queue_depth",
			Help: "Commands waiting for the single writer",
		}),

		// Idempotency
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_idempotency_duplicates_total",
			Help: "Replayed commands answered from cache (lru/store)",
		}, []string{"command_type", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "predict_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		// Rounds & Settlement
		CurrentEpoch: f.NewGauge(prometheus.GaugeOpts{
			Name: "predict_current_epoch",
			Help: "Latest started epoch",
		}),

		RoundsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "predict_rounds_started_total",
			Help: "Rounds started",
		}),

		RoundsSettled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_rounds_settled_total",
			Help: "Rounds settled by outcome",
		}, []string{"outcome"}),

		SettlementResidual: f.NewGauge(prometheus.GaugeOpts{
			Name: "predict_settlement_rounding_residual",
			Help: "Reward units floor division leaves unclaimed in the last settled round",
		}),

		AmountWagered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_amount_wagered_total",
			Help: "Native units wagered, by position",
		}, []string{"position"}),

		AmountPaid: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_amount_paid_total",
			Help: "Native units transferred out, by kind (payout/refund/treasury)",
		}, []string{"kind"}),

		TreasuryBalance: f.NewGauge(prometheus.GaugeOpts{
			Name: "predict_treasury_balance",
			Help: "Current treasury accumulator",
		}),

		// Oracle
		OracleReads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_oracle_reads_total",
			Help: "Oracle reads by result (ok/incomplete/stale/out_of_range/unavailable)",
		}, []string{"result"}),

		OracleWatermark: f.NewGauge(prometheus.GaugeOpts{
			Name: "predict_oracle_watermark",
			Help: "Last accepted oracle round id (low 64 bits)",
		}),

		// Transfers
		TransferFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_transfer_failures_total",
			Help: "Value transfers that failed and were rolled back",
		}, []string{"command_type"}),

		// Persistence
		PersistCommits: f.NewCounter(prometheus.CounterOpts{
			Name: "predict_persist_commits_total",
			Help: "Changesets committed",
		}),

		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "predict_persist_events_written_total",
			Help: "Events written to the event log",
		}),

		PersistCommitDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "predict_persist_commit_duration_seconds",
			Help:    "Changeset transaction duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		// Ingestion & Fan-out
		IngestMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_ingest_messages_total",
			Help: "Inbound command messages by outcome (ack/nak/term)",
		}, []string{"command_type", "outcome"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "predict_publish_drops_total",
			Help: "Events dropped due to a full publish channel",
		}),

		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "predict_stream_clients",
			Help: "Connected websocket event stream clients",
		}),

		// Query API
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "predict_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
