package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// CronJobMetrics tracks maintenance job runs. A nil value records nothing.
type CronJobMetrics struct {
	duration     *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	lastSuccess  *prometheus.GaugeVec
	retiredLinks prometheus.Gauge
	now          func() time.Time
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Wall time of maintenance job runs.",
			Buckets: []float64{.05, .25, 1, 5, 15, 60, 300, 600},
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Maintenance job runs by result.",
		}, []string{"job", "result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		retiredLinks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "custody_retired_link_tokens",
			Help: "Public link tokens retired during the last audit window.",
		}),
		now: time.Now,
	}
	reg.MustRegister(m.duration, m.runs, m.lastSuccess, m.retiredLinks)
	return m
}

// ObserveRun records one finished run of job; err decides the result label.
func (c *CronJobMetrics) ObserveRun(job string, took time.Duration, err error) {
	if c == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, resultFailure).Inc()
		return
	}
	c.runs.WithLabelValues(job, resultSuccess).Inc()
	c.lastSuccess.WithLabelValues(job).Set(float64(c.now().Unix()))
}

// SetRetiredLinkTokens publishes the latest link token audit figure.
func (c *CronJobMetrics) SetRetiredLinkTokens(count int64) {
	if c == nil {
		return
	}
	c.retiredLinks.Set(float64(count))
}

// normalizeLabel keeps empty label values out of every collector in this package.
func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
