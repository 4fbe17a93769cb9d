package metrics

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/certcheck/internal/certificate"
)

// Prometheus metrics
var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certcheck_checks_total",
			Help: "Certificate checks by outcome",
		},
		[]string{"outcome"},
	)
	daysToExpire = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "certcheck_days_to_expire",
			Help: "Whole days until the checked certificate expires, negative once expired",
		},
	)
	lastCheck = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "certcheck_last_check_timestamp_seconds",
			Help: "Unix time of the most recent check",
		},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certcheck_notifications_total",
			Help: "Notifications by kind and delivery status",
		},
		[]string{"kind", "status"},
	)
	schedulerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "certcheck_scheduler_active",
			Help: "1 while scheduled checks are enabled, 0 once the kill switch paused them",
		},
	)
)

// Outcome labels for certcheck_checks_total.
const (
	OutcomeValid    = "valid"
	OutcomeExpiring = "expiring"
	OutcomeExpired  = "expired"
)

// PrometheusReporter records check outcomes as Prometheus metrics.
type PrometheusReporter struct{}

func NewPrometheusReporter() *PrometheusReporter {
	return &PrometheusReporter{}
}

// ObserveCheck updates the check metrics for a result.
func (r *PrometheusReporter) ObserveCheck(res certificate.Result, at time.Time) {
	lastCheck.Set(float64(at.Unix()))
	res.Match(func(c certificate.Certificate) {
		days := c.DaysToExpireAt(at)
		daysToExpire.Set(float64(days))
		switch {
		case c.HasExpiredAt(at):
			checksTotal.WithLabelValues(OutcomeExpired).Inc()
		case days <= certificate.WarningDays:
			checksTotal.WithLabelValues(OutcomeExpiring).Inc()
		default:
			checksTotal.WithLabelValues(OutcomeValid).Inc()
		}
	}, func(e certificate.ErrorResult) {
		checksTotal.WithLabelValues(string(e.ErrorType)).Inc()
	})
}

// ObserveNotification counts a notification attempt.
func (r *PrometheusReporter) ObserveNotification(kind string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	notificationsTotal.WithLabelValues(kind, status).Inc()
}

// SetSchedulerActive records whether scheduled checks are enabled.
func (r *PrometheusReporter) SetSchedulerActive(active bool) {
	if active {
		schedulerActive.Set(1)
		return
	}
	schedulerActive.Set(0)
}

// WireUpHttpMetrics exposes /metrics on the router.
func (r *PrometheusReporter) WireUpHttpMetrics(router chi.Router) {
	router.Handle("/metrics", promhttp.Handler())
}
