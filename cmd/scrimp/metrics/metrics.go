package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"github.com/skroutz/scrimp/pkg/types"
)

// Recorder holds the collectors used by scrimp to export data to prometheus.
type Recorder struct {
	Log *logrus.Entry

	Registry *prometheus.Registry

	SourcesProcessed *prometheus.CounterVec
	DiffDuration     prometheus.Histogram
	OutputBytes      prometheus.Counter
	JobSuccess       prometheus.Gauge
	JobLastRun       prometheus.Gauge
}

const namespace = "scrimp"

// NewRecorder initializes a Recorder and sets up the collectors on a
// registry of its own.
func NewRecorder(logger *logrus.Entry) *Recorder {
	r := new(Recorder)
	r.Log = logger
	r.Registry = prometheus.NewRegistry()
	factory := promauto.With(r.Registry)

	r.SourcesProcessed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_processed_total",
			Help:      "The number of source dumps processed, by result",
		},
		[]string{"result"},
	)
	r.DiffDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_duration_seconds",
			Help:      "Time spent staging, diffing and collecting a single source dump",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	r.OutputBytes = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_bytes_total",
			Help:      "The size of the diffs written to the destination directory",
		},
	)
	r.JobSuccess = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_success",
			Help:      "1 if the last job succeeded, 0 otherwise",
		},
	)
	r.JobLastRun = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_run_timestamp_seconds",
			Help:      "When the last job started",
		},
	)

	return r
}

// RecordSource records the outcome of a single source. size is the size of
// its diff, or a negative number when no diff was collected.
func (r *Recorder) RecordSource(res *types.SourceResult, size int64) {
	result := "success"
	if !res.OK() {
		result = "failure"
	}
	r.SourcesProcessed.With(prometheus.Labels{"result": result}).Inc()
	r.DiffDuration.Observe(res.Duration.Seconds())
	if size > 0 {
		r.OutputBytes.Add(float64(size))
	}
}

// RecordJob records the outcome of the whole job.
func (r *Recorder) RecordJob(report *types.Report) {
	r.JobLastRun.Set(float64(report.StartedAt.Unix()))
	if report.Success {
		r.JobSuccess.Set(1)
	} else {
		r.JobSuccess.Set(0)
	}
}

// WriteTextfile writes every collected metric to path in the format read by
// the node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	err := prometheus.WriteToTextfile(path, r.Registry)
	if err != nil {
		r.Log.WithError(err).WithField("path", path).Error("cannot write metrics")
		return err
	}
	r.Log.WithField("path", path).Debug("metrics written")
	return nil
}
