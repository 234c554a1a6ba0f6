package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	SearchRequestsTotal   *prometheus.CounterVec
	SearchRequestDuration *prometheus.HistogramVec

	APIErrorsTotal *prometheus.CounterVec

	CaptchaRoundsTotal *prometheus.CounterVec

	LimitsRequestsTotal *prometheus.CounterVec
	DayLimit            prometheus.Gauge
}

// New регистрирует метрики в reg; nil -> prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		SearchRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yxml_search_requests_total",
				Help: "Total number of search requests",
			},
			[]string{"status"},
		),
		SearchRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "yxml_search_request_duration_seconds",
				Help:    "Search request duration in seconds, captcha rounds included",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yxml_api_errors_total",
				Help: "Total number of error codes returned by the API",
			},
			[]string{"code"},
		),

		CaptchaRoundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yxml_captcha_rounds_total",
				Help: "Total number of captcha rounds by outcome",
			},
			[]string{"outcome"},
		),

		LimitsRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yxml_limits_requests_total",
				Help: "Total number of limits-info requests",
			},
			[]string{"status"},
		),
		DayLimit: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "yxml_day_limit",
				Help: "Last known daily request limit",
			},
		),
	}

	return m
}

// Handler отдает метрики из g; nil - глобальный реестр.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Методы ниже безопасно вызывать на nil *Metrics.

func (m *Metrics) RecordSearch(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SearchRequestsTotal.WithLabelValues(status).Inc()
	m.SearchRequestDuration.WithLabelValues().Observe(duration.Seconds())
}

func (m *Metrics) RecordAPIError(code int) {
	if m == nil {
		return
	}
	m.APIErrorsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) RecordCaptchaRound(outcome string) {
	if m == nil {
		return
	}
	m.CaptchaRoundsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordLimits(status string, day int) {
	if m == nil {
		return
	}
	m.LimitsRequestsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		m.DayLimit.Set(float64(day))
	}
}
