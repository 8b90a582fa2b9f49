package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Outcome is what a single backup run reports.
type Outcome struct {
	Success       bool
	At            time.Time
	Duration      time.Duration
	StoredBytes   int64
	OriginalBytes int64
	Tables        int
	Sequences     int
}

// Recorder holds the gauges of one run in private registries so that a
// Pushgateway push only carries this job's series. Run gauges are pushed
// after every run; success gauges only after a successful one.
type Recorder struct {
	run       *prometheus.Registry
	success   *prometheus.Registry
	succeeded bool

	LastRun     prometheus.Gauge
	LastSuccess prometheus.Gauge
	Status      prometheus.Gauge
	Duration    prometheus.Gauge
	Bytes       *prometheus.GaugeVec
	Tables      prometheus.Gauge
	Sequences   prometheus.Gauge
}

func New() *Recorder {
	run := prometheus.NewRegistry()
	success := prometheus.NewRegistry()
	runFactory := promauto.With(run)
	successFactory := promauto.With(success)

	return &Recorder{
		run:     run,
		success: success,
		LastRun: runFactory.NewGauge(prometheus.GaugeOpts{
			Name: "pgbackup_last_run_timestamp_seconds",
			Help: "Unix time of the last backup run",
		}),
		LastSuccess: successFactory.NewGauge(prometheus.GaugeOpts{
			Name: "pgbackup_last_success_timestamp_seconds",
			Help: "Unix time of the last successful backup",
		}),
		Status: runFactory.NewGauge(prometheus.GaugeOpts{
			Name: "pgbackup_last_run_success",
			Help: "1 if the last backup run succeeded, 0 otherwise",
		}),
		Duration: runFactory.NewGauge(prometheus.GaugeOpts{
			Name: "pgbackup_duration_seconds",
			Help: "Duration of the last backup run",
		}),
		Bytes: successFactory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pgbackup_artifact_bytes",
			Help: "Size of the last backup artifact",
		}, []string{"kind"}),
		Tables: successFactory.NewGauge(prometheus.GaugeOpts{
			Name: "pgbackup_tables",
			Help: "Tables found in the last successful dump",
		}),
		Sequences: successFactory.NewGauge(prometheus.GaugeOpts{
			Name: "pgbackup_sequences",
			Help: "Sequences found in the last successful dump",
		}),
	}
}

// Gatherer returns what the next push carries: the run gauges, plus the
// success gauges once a run has succeeded.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r.succeeded {
		return prometheus.Gatherers{r.run, r.success}
	}
	return r.run
}

// Observe records a run. Artifact gauges and the success timestamp are only
// set on success, so a failed run never hides the last good backup.
func (r *Recorder) Observe(o Outcome) {
	r.LastRun.Set(float64(o.At.Unix()))
	r.Duration.Set(o.Duration.Seconds())
	if !o.Success {
		r.Status.Set(0)
		return
	}
	r.Status.Set(1)
	r.succeeded = true
	r.LastSuccess.Set(float64(o.At.Unix()))
	r.Bytes.WithLabelValues("stored").Set(float64(o.StoredBytes))
	r.Bytes.WithLabelValues("original").Set(float64(o.OriginalBytes))
	r.Tables.Set(float64(o.Tables))
	r.Sequences.Set(float64(o.Sequences))
}

// Push adds the recorded series to the Pushgateway group job/database.
// POST only replaces the series it carries, and a failed run carries no
// success series, so the previous success timestamp survives.
func (r *Recorder) Push(ctx context.Context, url, job, database string) error {
	err := push.New(url, job).
		Gatherer(r.Gatherer()).
		Grouping("database", database).
		AddContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	slog.Debug("Metrics pushed", "url", url, "job", job, "database", database)
	return nil
}
