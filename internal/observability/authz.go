package observability

import "github.com/prometheus/client_golang/prometheus"

// AuthzMetrics counts authorization subsystem events.
type AuthzMetrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	Resolutions    prometheus.Counter
	AuditFailures  prometheus.Counter
}

// NewAuthzMetrics registers authorization counters on the given registerer.
func NewAuthzMetrics(reg prometheus.Registerer) *AuthzMetrics {
	m := &AuthzMetrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentra_authz_cache_hits_total",
			Help: "Permission cache lookups answered from memory.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentra_authz_cache_misses_total",
			Help: "Permission cache lookups that required resolution.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentra_authz_cache_evictions_total",
			Help: "Permission cache entries evicted by capacity pressure.",
		}),
		Resolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentra_authz_resolutions_total",
			Help: "Full permission resolutions against the data store.",
		}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentra_authz_audit_failures_total",
			Help: "Audit writes that failed after a successful mutation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.CacheHits, m.CacheMisses, m.CacheEvictions, m.Resolutions, m.AuditFailures)
	}
	return m
}
