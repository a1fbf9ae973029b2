package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func TestRecordCommand(t *testing.T) {
	before := getCounterValue(CommandsTotal, "device", OutcomeError)

	RecordCommand("device", OutcomeError)
	RecordCommand("device", OutcomeError)

	if got := getCounterValue(CommandsTotal, "device", OutcomeError) - before; got != 2 {
		t.Errorf("commands_total delta = %v, want 2", got)
	}
}

func TestRecordAttempt(t *testing.T) {
	before := getCounterValue(RequestAttemptsTotal, "POST", OutcomeRetry)

	RecordAttempt("POST", OutcomeRetry)

	if got := getCounterValue(RequestAttemptsTotal, "POST", OutcomeRetry) - before; got != 1 {
		t.Errorf("request_attempts_total delta = %v, want 1", got)
	}
}

func TestRecordRefresh(t *testing.T) {
	before := getCounterValue(EntityRefreshTotal, OutcomeCached)

	RecordRefresh(OutcomeCached, 7)

	if got := getCounterValue(EntityRefreshTotal, OutcomeCached) - before; got != 1 {
		t.Errorf("entity_refresh_total delta = %v, want 1", got)
	}
	if got := getGaugeValue(EntitiesLoaded); got != 7 {
		t.Errorf("entities_loaded = %v, want 7", got)
	}
}

func TestRecordIntentAndIntake(t *testing.T) {
	intentBefore := getCounterValue(IntentRequestsTotal, "gemini", OutcomeSuccess)
	intakeBefore := getCounterValue(IntakeRequestsTotal, "/text", "202")

	RecordIntent("gemini", OutcomeSuccess)
	RecordIntake("/text", 202)

	if got := getCounterValue(IntentRequestsTotal, "gemini", OutcomeSuccess) - intentBefore; got != 1 {
		t.Errorf("intent_requests_total delta = %v, want 1", got)
	}
	if got := getCounterValue(IntakeRequestsTotal, "/text", "202") - intakeBefore; got != 1 {
		t.Errorf("intake_requests_total delta = %v, want 1", got)
	}
}
