package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob Pushgateway job label
const DefaultJob = "dsgvo-downloader"

// Recorder per-run counters. A one-shot job is never scraped, so the registry is pushed
// to a Pushgateway at the end of the run.
type Recorder struct {
	registry *prometheus.Registry

	listed         prometheus.Counter
	stored         prometheus.Counter
	skipped        prometheus.Counter
	archived       prometheus.Counter
	lastSuccess    prometheus.Gauge
	lastFinished   prometheus.Gauge
	detailDuration prometheus.Histogram
}

// NewRecorder registers all collectors on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.listed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dsgvo",
		Name:      "incidents_listed_total",
		Help:      "Incident summaries returned by the list query",
	})
	r.stored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dsgvo",
		Name:      "incidents_stored_total",
		Help:      "Incident rows committed",
	})
	r.skipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dsgvo",
		Name:      "incidents_skipped_total",
		Help:      "Incidents skipped because the portal reported them as not found",
	})
	r.archived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dsgvo",
		Name:      "archive_rows_total",
		Help:      "Raw list payloads appended to incident_history",
	})
	r.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dsgvo",
		Name:      "last_run_success",
		Help:      "1 if the last run completed successfully, 0 otherwise",
	})
	r.lastFinished = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dsgvo",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished",
	})
	r.detailDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dsgvo",
		Name:      "detail_fetch_duration_seconds",
		Help:      "Latency of detail queries",
		Buckets:   prometheus.DefBuckets,
	})

	r.registry.MustRegister(r.listed, r.stored, r.skipped, r.archived, r.lastSuccess, r.lastFinished, r.detailDuration)
	return r
}

// Registry exposes the registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) IncidentsListed(n int) {
	r.listed.Add(float64(n))
}

func (r *Recorder) IncidentStored() {
	r.stored.Inc()
}

func (r *Recorder) IncidentSkipped() {
	r.skipped.Inc()
}

func (r *Recorder) RawArchived() {
	r.archived.Inc()
}

func (r *Recorder) ObserveDetailFetch(d time.Duration) {
	r.detailDuration.Observe(d.Seconds())
}

// RunFinished records the outcome of the run.
func (r *Recorder) RunFinished(success bool, at time.Time) {
	if success {
		r.lastSuccess.Set(1)
	} else {
		r.lastSuccess.Set(0)
	}
	r.lastFinished.Set(float64(at.Unix()))
}

// Push replaces the job's metric group on the Pushgateway at url.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if job == "" {
		job = DefaultJob
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
