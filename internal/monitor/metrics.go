package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelCheck  = "check"
	labelStatus = "status"
)

// Metrics exports cycle results to Prometheus.
type Metrics struct {
	checkStatus   *prometheus.GaugeVec
	checkDuration *prometheus.HistogramVec
	cycles        *prometheus.CounterVec
}

// NewMetrics creates the monitor collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checkStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sitesmoke_monitor_check_status",
			Help: "Last status of each monitored check: 1 pass, 0.5 warning, 0 fail",
		}, []string{labelCheck}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitesmoke_monitor_check_duration_seconds",
			Help:    "Time taken by each monitored check",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{labelCheck}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesmoke_monitor_cycles_total",
			Help: "Monitoring cycles by overall status",
		}, []string{labelStatus}),
	}
	reg.MustRegister(m.checkStatus, m.checkDuration, m.cycles)
	return m
}

// Observe records one cycle. A nil Metrics ignores the call.
func (m *Metrics) Observe(r CycleResult) {
	if m == nil {
		return
	}
	for _, c := range r.Checks {
		m.checkStatus.WithLabelValues(c.Name).Set(statusValue(c.Status))
		m.checkDuration.WithLabelValues(c.Name).Observe(c.Duration.Seconds())
	}
	m.cycles.WithLabelValues(string(r.Status)).Inc()
}

func statusValue(s CheckStatus) float64 {
	switch s {
	case CheckPass:
		return 1
	case CheckWarning:
		return 0.5
	default:
		return 0
	}
}
