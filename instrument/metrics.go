// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package instrument

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for requests sent to identity providers.
// Tracks request counts by outcome and request durations.
type Metrics struct {
	Requests          *prometheus.CounterVec
	TransportFailures *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered with
// reg. A nil reg registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth2_client_provider_requests_total",
			Help: "Total number of requests which got a reply from an identity provider",
		}, []string{"method", "host", "status"}),
		TransportFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth2_client_provider_transport_failures_total",
			Help: "Total number of requests which got no reply from an identity provider",
		}, []string{"method", "host"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oauth2_client_provider_request_duration_seconds",
			Help:    "Duration of requests sent to identity providers",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "host"}),
	}
}

// ObserveReply records a request which got a reply with status.
// Call with time.Now() at the start of the request.
func (m *Metrics) ObserveReply(method, host string, status int, start time.Time) {
	m.Requests.WithLabelValues(method, host, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, host).Observe(time.Since(start).Seconds())
}

// ObserveFailure records a request which got no reply.
// Call with time.Now() at the start of the request.
func (m *Metrics) ObserveFailure(method, host string, start time.Time) {
	m.TransportFailures.WithLabelValues(method, host).Inc()
	m.RequestDuration.WithLabelValues(method, host).Observe(time.Since(start).Seconds())
}
