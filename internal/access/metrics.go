package access

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for authentication activity.
type Metrics struct {
	identifies    *prometheus.CounterVec
	adminLogins   *prometheus.CounterVec
	registrations prometheus.Counter
	reloads       prometheus.Counter
	users         prometheus.Gauge
	groups        prometheus.Gauge
}

// NewMetrics creates collectors; nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		identifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "access",
			Name:      "identify_total",
			Help:      "Identify attempts by result.",
		}, []string{"result"}),
		adminLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "access",
			Name:      "admin_login_total",
			Help:      "Admin password attempts by result.",
		}, []string{"result"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "access",
			Name:      "registrations_total",
			Help:      "Call signs registered.",
		}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "access",
			Name:      "reloads_total",
			Help:      "Database reloads.",
		}),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "access",
			Name:      "users",
			Help:      "Registered users.",
		}),
		groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "access",
			Name:      "groups",
			Help:      "Known groups.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.identifies, m.adminLogins, m.registrations, m.reloads, m.users, m.groups)
	}
	return m
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func (m *Metrics) observeDatabase(r *registry) {
	m.users.Set(float64(len(r.users)))
	m.groups.Set(float64(len(r.groups)))
}
