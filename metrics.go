package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeInactive           = "inactive"
	OutcomeTokenInvalid       = "token_invalid"
	OutcomeError              = "error"
)

// Security context kind label values
const (
	ContextAuthenticated = "authenticated"
	ContextAnonymous     = "anonymous"
)

// Sweep reason label values
const (
	SweepExpired = "expired"
	SweepUsed    = "used"
)

// Metrics holds the auth counters. A nil *Metrics records nothing.
type Metrics struct {
	logins           *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
	securityContexts *prometheus.CounterVec
	tokensSwept      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linklift_auth_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linklift_auth_refreshes_total",
			Help: "Refresh token exchanges by outcome",
		}, []string{"outcome"}),
		securityContexts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linklift_auth_security_contexts_total",
			Help: "Security contexts built per request by kind",
		}, []string{"kind"}),
		tokensSwept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linklift_auth_tokens_swept_total",
			Help: "Persisted tokens deleted by the retention sweep",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.logins,
		m.refreshes,
		m.securityContexts,
		m.tokensSwept,
	)

	return m
}

func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSecurityContext(authenticated bool) {
	if m == nil {
		return
	}
	kind := ContextAnonymous
	if authenticated {
		kind = ContextAuthenticated
	}
	m.securityContexts.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordSwept(reason string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.tokensSwept.WithLabelValues(reason).Add(float64(count))
}

// outcomeFor maps a service error to a metric outcome label
func outcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case err == ErrInvalidCredentials:
		return OutcomeInvalidCredentials
	case err == ErrUserInactive:
		return OutcomeInactive
	case err == ErrTokenInvalid:
		return OutcomeTokenInvalid
	default:
		return OutcomeError
	}
}
