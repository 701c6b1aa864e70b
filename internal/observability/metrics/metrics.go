package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the WhatsApp intake flow.
type IntakeMetrics struct {
	inboundTotal       *prometheus.CounterVec
	outboundTotal      *prometheus.CounterVec
	handoffsTotal      *prometheus.CounterVec
	completionFailures *prometheus.CounterVec
	turnLatency        *prometheus.HistogramVec
	webhookLatency     *prometheus.HistogramVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidens",
			Subsystem: "intake",
			Name:      "inbound_messages_total",
			Help:      "Inbound patient messages by kind and outcome",
		}, []string{"kind", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidens",
			Subsystem: "intake",
			Name:      "outbound_messages_total",
			Help:      "Outbound replies by delivery status",
		}, []string{"status", "simulated"}),
		handoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidens",
			Subsystem: "intake",
			Name:      "handoffs_total",
			Help:      "Conversations handed to the operator, by reason",
		}, []string{"reason"}),
		completionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidens",
			Subsystem: "intake",
			Name:      "completion_failures_total",
			Help:      "Completion calls that errored or returned empty text",
		}, []string{"kind"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evidens",
			Subsystem: "intake",
			Name:      "turn_latency_seconds",
			Help:      "Wall time of one orchestrator turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evidens",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of Z-API webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.handoffsTotal, m.completionFailures, m.turnLatency, m.webhookLatency)
	return m
}

func (m *IntakeMetrics) ObserveInbound(kind, outcome string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "text"
	}
	m.inboundTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *IntakeMetrics) ObserveOutbound(status string, simulated bool) {
	if m == nil {
		return
	}
	label := "false"
	if simulated {
		label = "true"
	}
	m.outboundTotal.WithLabelValues(status, label).Inc()
}

func (m *IntakeMetrics) ObserveHandoff(reason string) {
	if m == nil {
		return
	}
	m.handoffsTotal.WithLabelValues(reason).Inc()
}

// ObserveCompletionFailure takes "error" or "empty".
func (m *IntakeMetrics) ObserveCompletionFailure(kind string) {
	if m == nil {
		return
	}
	m.completionFailures.WithLabelValues(kind).Inc()
}

func (m *IntakeMetrics) ObserveTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *IntakeMetrics) ObserveWebhookLatency(result string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(result).Observe(seconds)
}
