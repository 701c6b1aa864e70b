package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestIntakeMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIntakeMetrics(reg)

	m.ObserveInbound("", "processed")
	m.ObserveInbound("text", "processed")
	m.ObserveHandoff("technical_error")
	m.ObserveOutbound("failed", true)
	m.ObserveCompletionFailure("empty")
	m.ObserveTurn("replied", 0.2)
	m.ObserveWebhookLatency("enqueued", 0.01)

	if got := counterValue(t, reg, "evidens_intake_inbound_messages_total", map[string]string{"kind": "text", "outcome": "processed"}); got != 2 {
		t.Fatalf("inbound counter = %v, want 2", got)
	}
	if got := counterValue(t, reg, "evidens_intake_handoffs_total", map[string]string{"reason": "technical_error"}); got != 1 {
		t.Fatalf("handoff counter = %v, want 1", got)
	}
	if got := counterValue(t, reg, "evidens_intake_outbound_messages_total", map[string]string{"status": "failed", "simulated": "true"}); got != 1 {
		t.Fatalf("outbound counter = %v, want 1", got)
	}
}

func TestIntakeMetricsNilSafe(t *testing.T) {
	var m *IntakeMetrics
	m.ObserveInbound("text", "processed")
	m.ObserveOutbound("sent", false)
	m.ObserveHandoff("qualification_complete")
	m.ObserveCompletionFailure("error")
	m.ObserveTurn("replied", 0.1)
	m.ObserveWebhookLatency("ignored", 0.1)
}
