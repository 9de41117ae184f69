// Package metrics exposes poolwatch counters for Prometheus scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Drop reasons for alerts_dropped_total.
const (
	DropQueueFull = "queue_full"
	DropDelivery  = "delivery_failed"
)

var (
	recordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poolwatch",
		Name:      "records_total",
		Help:      "Total access-log records processed.",
	})

	parseErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poolwatch",
		Name:      "parse_errors_total",
		Help:      "Total access-log lines skipped by the parser.",
	})

	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolwatch",
		Name:      "alerts_total",
		Help:      "Total alerts decided, partitioned by kind.",
	}, []string{"kind"})

	alertsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolwatch",
		Name:      "alerts_dropped_total",
		Help:      "Total alerts dropped before delivery, partitioned by reason.",
	}, []string{"reason"})

	errorRatePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "poolwatch",
		Name:      "error_rate_percent",
		Help:      "Current windowed error rate as a percentage.",
	})
)

// Register attaches poolwatch collectors to the supplied Prometheus
// registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		recordsTotal,
		parseErrorsTotal,
		alertsTotal,
		alertsDroppedTotal,
		errorRatePercent,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRecord counts one processed record and updates the live rate.
func ObserveRecord(rate float64) {
	recordsTotal.Inc()
	errorRatePercent.Set(rate)
}

// ObserveParseError counts one skipped log line.
func ObserveParseError() { parseErrorsTotal.Inc() }

// ObserveAlert counts one decided alert of the given kind.
func ObserveAlert(kind string) { alertsTotal.WithLabelValues(kind).Inc() }

// ObserveDrop counts one alert dropped for the given reason.
func ObserveDrop(reason string) { alertsDroppedTotal.WithLabelValues(reason).Inc() }

// Serve starts an HTTP listener exposing /metrics on addr. It returns
// immediately; listener errors are logged, not fatal — metrics are an
// observability aid, not a monitoring precondition.
func Serve(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", addr).Msg("metrics_server_failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics_server_started")
	return srv
}
