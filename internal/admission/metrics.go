package admission

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts admission outcomes per device type.
type Metrics struct {
	decisions *prometheus.CounterVec
}

// NewMetrics registers the admission collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avtotest",
			Name:      "admission_decisions_total",
			Help:      "Device admission decisions by device type and outcome.",
		}, []string{"device_type", "outcome"}),
	}
	reg.MustRegister(m.decisions)
	return m
}

func (m *Metrics) observe(d Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(d.DeviceType), string(d.Outcome)).Inc()
}
