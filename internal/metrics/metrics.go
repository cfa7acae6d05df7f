// Package metrics exposes Prometheus collectors for the prospector service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	verificationsTotal       *prometheus.CounterVec
	smtpProbesInFlight       prometheus.Gauge
	dnsLookupsTotal          *prometheus.CounterVec
	scrapePagesTotal         *prometheus.CounterVec
	pipelineRunsTotal        *prometheus.CounterVec
	checkpointFlushesTotal   *prometheus.CounterVec
	stageItemDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		verificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_verifications_total",
				Help: "Total number of email verifications, labeled by status.",
			},
			[]string{"status"},
		)

		smtpProbesInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "prospector_smtp_probes_in_flight",
				Help: "Number of SMTP probe conversations currently open.",
			},
		)

		dnsLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_dns_lookups_total",
				Help: "Total number of MX resolutions, labeled by result note.",
			},
			[]string{"result"},
		)

		scrapePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_scrape_pages_total",
				Help: "Total number of pages fetched for extraction, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_pipeline_runs_total",
				Help: "Total number of pipeline runs reaching a terminal status.",
			},
			[]string{"status"},
		)

		checkpointFlushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_checkpoint_flushes_total",
				Help: "Total number of checkpoint chunk flushes, labeled by result.",
			},
			[]string{"result"},
		)

		stageItemDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prospector_stage_item_duration_seconds",
				Help:    "Histogram of per-item stage processing latencies.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"step"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveVerification counts a completed verification by status.
func ObserveVerification(status string) {
	if verificationsTotal == nil {
		return
	}
	verificationsTotal.WithLabelValues(status).Inc()
}

// IncSMTPProbes marks an SMTP conversation as opened.
func IncSMTPProbes() {
	if smtpProbesInFlight == nil {
		return
	}
	smtpProbesInFlight.Inc()
}

// DecSMTPProbes marks an SMTP conversation as closed.
func DecSMTPProbes() {
	if smtpProbesInFlight == nil {
		return
	}
	smtpProbesInFlight.Dec()
}

// ObserveDNSLookup counts an MX resolution by result note.
func ObserveDNSLookup(result string) {
	if dnsLookupsTotal == nil {
		return
	}
	dnsLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveScrapePage counts a fetched page by site and result.
func ObserveScrapePage(site, result string) {
	if scrapePagesTotal == nil {
		return
	}
	scrapePagesTotal.WithLabelValues(SanitizeSite(site), result).Inc()
}

// ObserveRun counts a run reaching a terminal status.
func ObserveRun(status string) {
	if pipelineRunsTotal == nil {
		return
	}
	pipelineRunsTotal.WithLabelValues(status).Inc()
}

// ObserveCheckpointFlush counts a checkpoint chunk flush outcome.
func ObserveCheckpointFlush(result string) {
	if checkpointFlushesTotal == nil {
		return
	}
	checkpointFlushesTotal.WithLabelValues(result).Inc()
}

// ObserveStageItem records how long one item spent inside a stage.
func ObserveStageItem(step string, duration time.Duration) {
	if stageItemDurationSeconds == nil {
		return
	}
	stageItemDurationSeconds.WithLabelValues(step).Observe(duration.Seconds())
}
