package authkit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's counters. Pass a Registerer to NewMetrics to
// expose them; a nil Registerer yields working but unregistered collectors,
// which keeps tests and embedded uses free of global registry collisions.
type Metrics struct {
	Logins            *prometheus.CounterVec
	RateLimitRejects  prometheus.Counter
	RateLimitDegraded prometheus.Counter
	SecondFactorFails prometheus.Counter
	SessionsEvicted   prometheus.Counter
	SessionsSwept     prometheus.Counter
	TokensRefreshed   prometheus.Counter
	DevicesTrusted    prometheus.Counter
}

// NewMetrics builds the counter set and registers it when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zenith",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zenith",
			Subsystem: "auth",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		RateLimitDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zenith",
			Subsystem: "auth",
			Name:      "rate_limit_degraded_total",
			Help:      "Rate limit checks that failed open on store errors.",
		}),
		SecondFactorFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zenith",
			Subsystem: "auth",
			Name:      "second_factor_failures_total",
			Help:      "Failed second-factor verifications.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zenith",
			Subsystem: "auth",
			Name:      "sessions_evicted_total",
			Help:      "Sessions destroyed by per-account cap enforcement.",
		}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zenith",
			Subsystem: "auth",
			Name:      "sessions_swept_total",
			Help:      "Sessions removed by the background sweep.",
		}),
		TokensRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zenith",
			Subsystem: "auth",
			Name:      "tokens_refreshed_total",
			Help:      "Access tokens minted through the refresh flow.",
		}),
		DevicesTrusted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zenith",
			Subsystem: "auth",
			Name:      "devices_trusted_total",
			Help:      "Devices granted a second-factor exemption.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Logins, m.RateLimitRejects, m.RateLimitDegraded,
			m.SecondFactorFails, m.SessionsEvicted, m.SessionsSwept,
			m.TokensRefreshed, m.DevicesTrusted)
	}
	return m
}
