package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault service.
type Metrics struct {
	// --- Core Processing ---
	CoreCommandsApplied  *prometheus.CounterVec
	CoreCommandsRejected *prometheus.CounterVec
	CoreCommandDuration  *prometheus.HistogramVec
	CoreStateHashDur     prometheus.Histogram
	CoreSequence         prometheus.Gauge

	// --- Vault State ---
	VaultReserveAmount *prometheus.GaugeVec
	VaultReserveShares *prometheus.GaugeVec

	// --- Batch Execution ---
	BatchOpsExecuted *prometheus.CounterVec
	BatchRollbacks   prometheus.Counter
	BatchSize        prometheus.Histogram

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter

	// --- Ingestion & Publishing ---
	IngestToApply      *prometheus.HistogramVec
	PublishDrops       prometheus.Counter
	ParseErrors        *prometheus.CounterVec
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CoreCommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_core_commands_applied_total",
			Help: "Commands successfully applied by core",
		}, []string{"command_type"}),

		CoreCommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_core_commands_rejected_total",
			Help: "Commands rejected (dedup, validation)",
		}, []string{"command_type", "reason"}),

		CoreCommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_core_command_apply_duration_seconds",
			Help:    "Time to apply a single command in core",
			Buckets: latencyBuckets,
		}, []string{"command_type"}),

		CoreStateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_core_sequence",
			Help: "Current global sequence number",
		}),

		VaultReserveAmount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_reserve_amount",
			Help: "Pooled token amount per reserve",
		}, []string{"token"}),

		VaultReserveShares: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_reserve_shares",
			Help: "Issued shares per reserve",
		}, []string{"token"}),

		BatchOpsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_batch_ops_executed_total",
			Help: "Batch operations executed by outcome",
		}, []string{"op_type", "outcome"}),

		BatchRollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_batch_rollbacks_total",
			Help: "Strict batches rolled back after a failed op",
		}),

		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_batch_size",
			Help:    "Operations per batch",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_idempotency_duplicates_total",
			Help: "Duplicate commands caught by the LRU",
		}, []string{"command_type"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_ingest_to_apply_seconds",
			Help:    "NATS receive to core apply complete",
			Buckets: ingestBuckets,
		}, []string{"command_type"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_drops_total",
			Help: "Envelopes dropped due to full publish channel",
		}),

		ParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_parse_errors_total",
			Help: "Malformed commands rejected at ingestion",
		}, []string{"reason"}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
