// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a redirect or silent token acquisition.
const (
	OutcomeSuccess             = "success"
	OutcomeProtocolError       = "protocol_error"
	OutcomeLoginFailed         = "login_failed"
	OutcomeError               = "error"
	OutcomeCached              = "cached"
	OutcomeRefreshed           = "refreshed"
	OutcomeInteractionRequired = "interaction_required"
)

// Metrics counts the flow's transitions.  A nil *Metrics counts nothing.
type Metrics struct {
	LoginRedirects prometheus.Counter
	Redirects      *prometheus.CounterVec
	SilentAcquires *prometheus.CounterVec
	Logouts        prometheus.Counter
}

// NewMetrics creates the flow's metrics and registers them with the
// registerer.  A nil registerer creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoginRedirects: factory.NewCounter(prometheus.CounterOpts{
			Name: "cap_webflow_login_redirects_total",
			Help: "Total number of users redirected to the provider to sign in",
		}),
		Redirects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cap_webflow_redirects_total",
			Help: "Total number of authentication responses handled, by outcome",
		}, []string{"outcome"}),
		SilentAcquires: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cap_webflow_silent_acquires_total",
			Help: "Total number of silent token acquisitions, by outcome",
		}, []string{"outcome"}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "cap_webflow_logouts_total",
			Help: "Total number of users signed out",
		}),
	}
}

// IncrementLoginRedirects records a user sent to the provider.
func (m *Metrics) IncrementLoginRedirects() {
	if m == nil {
		return
	}
	m.LoginRedirects.Inc()
}

// IncrementRedirects records the outcome of an authentication response.
func (m *Metrics) IncrementRedirects(outcome string) {
	if m == nil {
		return
	}
	m.Redirects.WithLabelValues(outcome).Inc()
}

// IncrementSilentAcquires records the outcome of a silent acquisition.
func (m *Metrics) IncrementSilentAcquires(outcome string) {
	if m == nil {
		return
	}
	m.SilentAcquires.WithLabelValues(outcome).Inc()
}

// IncrementLogouts records a user signed out.
func (m *Metrics) IncrementLogouts() {
	if m == nil {
		return
	}
	m.Logouts.Inc()
}

// redirectOutcome classifies the result of handling a redirect.
func redirectOutcome(err error) string {
	switch ErrorStatus(err) {
	case http.StatusOK:
		return OutcomeSuccess
	case http.StatusBadRequest:
		return OutcomeProtocolError
	case http.StatusUnauthorized:
		return OutcomeLoginFailed
	default:
		return OutcomeError
	}
}
