// Package metrics exposes Prometheus counters for the auth flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics holds the counters incremented by the auth services.
type AuthMetrics struct {
	Registrations   prometheus.Counter
	Logins          *prometheus.CounterVec
	Lockouts        prometheus.Counter
	TokenRefreshes  *prometheus.CounterVec
	PasswordResets  *prometheus.CounterVec
	OAuthLogins     *prometheus.CounterVec
	CleanupDeleted  *prometheus.CounterVec
}

// NewAuthMetrics registers the counter set on the supplied registerer.
// Passing prometheus.DefaultRegisterer wires the default /metrics output.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "registrations_total",
			Help:      "Total number of successful registrations",
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "logins_total",
			Help:      "Total number of login attempts by result",
		}, []string{"result"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "lockouts_total",
			Help:      "Total number of login attempts rejected by lockout",
		}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "token_refreshes_total",
			Help:      "Total number of refresh attempts by result",
		}, []string{"result"}),
		PasswordResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "password_resets_total",
			Help:      "Total number of password reset operations by stage",
		}, []string{"stage"}),
		OAuthLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "oauth_logins_total",
			Help:      "Total number of OAuth authentications by provider",
		}, []string{"provider"}),
		CleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "cleanup_deleted_rows_total",
			Help:      "Total number of rows purged by the cleanup loop",
		}, []string{"table"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Registrations,
			m.Logins,
			m.Lockouts,
			m.TokenRefreshes,
			m.PasswordResets,
			m.OAuthLogins,
			m.CleanupDeleted,
		)
	}

	return m
}
