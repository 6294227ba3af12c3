// Package metrics defines the Prometheus collectors of deltasync.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can be built without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deltasync"

// Metrics holds the collectors.
type Metrics struct {
	DocumentsClassified *prometheus.CounterVec
	LedgerDegraded      prometheus.Counter
	PartitionMoves      *prometheus.CounterVec
	UploadChunks        *prometheus.CounterVec
	UploadDuration      prometheus.Histogram
	CheckpointsLive     prometheus.Gauge
	CheckpointsSwept    prometheus.Counter
	Runs                *prometheus.CounterVec
	OwnerFailures       prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_classified_total",
			Help:      "Documents classified, by novelty.",
		}, []string{"novelty"}),
		LedgerDegraded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_degraded_total",
			Help:      "Owners classified without ledger access.",
		}),
		PartitionMoves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partition_moves_total",
			Help:      "Documents moved between partitions, by destination.",
		}, []string{"to"}),
		UploadChunks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_chunks_total",
			Help:      "Upload requests sent, by outcome.",
		}, []string{"outcome"}),
		UploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Duration of a complete batch send.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		CheckpointsLive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoints_live",
			Help:      "Checkpoints retained on disk.",
		}),
		CheckpointsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_swept_total",
			Help:      "Checkpoints deleted by the age sweep.",
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs, by status.",
		}, []string{"status"}),
		OwnerFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "owner_failures_total",
			Help:      "Owners whose collection failed.",
		}),
	}
}

// Classified counts a classified document.
func (m *Metrics) Classified(novelty string) {
	if m == nil {
		return
	}
	m.DocumentsClassified.WithLabelValues(novelty).Inc()
}

// Degraded counts an owner classified without ledger access.
func (m *Metrics) Degraded() {
	if m == nil {
		return
	}
	m.LedgerDegraded.Inc()
}

// Moved counts n partition moves towards the named partition.
func (m *Metrics) Moved(to string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.PartitionMoves.WithLabelValues(to).Add(float64(n))
}

// Chunk counts an upload request.
func (m *Metrics) Chunk(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.UploadChunks.WithLabelValues(outcome).Inc()
}

// UploadSeconds observes the duration of a send.
func (m *Metrics) UploadSeconds(s float64) {
	if m == nil {
		return
	}
	m.UploadDuration.Observe(s)
}

// LiveCheckpoints sets the retained checkpoint count.
func (m *Metrics) LiveCheckpoints(n int) {
	if m == nil {
		return
	}
	m.CheckpointsLive.Set(float64(n))
}

// Swept counts checkpoints removed by the sweep.
func (m *Metrics) Swept(n int) {
	if m == nil || n == 0 {
		return
	}
	m.CheckpointsSwept.Add(float64(n))
}

// Run counts a finished run.
func (m *Metrics) Run(status string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
}

// OwnerFailed counts a failed owner.
func (m *Metrics) OwnerFailed() {
	if m == nil {
		return
	}
	m.OwnerFailures.Inc()
}
