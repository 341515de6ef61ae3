package market

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks sync engine counters and gauges.
type Metrics struct {
	Events      *prometheus.CounterVec
	ParseErrors prometheus.Counter
	Desyncs     prometheus.Counter
	OpenOffers  *prometheus.GaugeVec
}

// NewMetrics builds the metric set and registers it when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketscope",
			Name:      "events_total",
			Help:      "Decoded protocol events by tag.",
		}, []string{"tag"}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketscope",
			Name:      "parse_errors_total",
			Help:      "Tagged log lines with malformed bodies.",
		}),
		Desyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketscope",
			Name:      "desyncs_total",
			Help:      "Index/registry desynchronizations detected.",
		}),
		OpenOffers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "marketscope",
			Name:      "open_offers",
			Help:      "Open offers currently indexed, by side.",
		}, []string{"side"}),
	}
	if reg != nil {
		reg.MustRegister(m.Events, m.ParseErrors, m.Desyncs, m.OpenOffers)
	}
	return m
}
