// Package metrics collects authentication metrics for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what handlers need from the collector.
type Recorder interface {
	RecordAuthRejection(reason string)
	RecordLogin(outcome string)
	RecordVerification(outcome string)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	authRejections *prometheus.CounterVec
	logins         *prometheus.CounterVec
	verifications  *prometheus.CounterVec
}

// NewCollector registers the auth metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venuely_auth_rejections_total",
			Help: "Requests rejected by the auth middleware, by reason.",
		}, []string{"reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venuely_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venuely_email_verifications_total",
			Help: "Email passcode confirmations by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(c.authRejections, c.logins, c.verifications)
	return c
}

func (c *Collector) RecordAuthRejection(reason string) {
	c.authRejections.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordVerification(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordAuthRejection(string) {}
func (Nop) RecordLogin(string)         {}
func (Nop) RecordVerification(string)  {}
