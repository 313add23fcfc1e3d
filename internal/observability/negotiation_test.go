package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNegotiationSnapshotFollowsConnectOrder(t *testing.T) {
	w := newNegotiationWindow(8)
	w.observe(StageSignaling, 500*time.Millisecond)
	w.observe(StageStartSession, 100*time.Millisecond)
	w.observe(StageSignaling, 900*time.Millisecond)
	w.observe(StageSignaling, 700*time.Millisecond)
	w.observe("", time.Second)
	w.observe(StageOffer, -time.Second)

	snap := w.snapshot()
	if len(snap.Stages) != 2 {
		t.Fatalf("Stages = %+v, want start_session and signaling", snap.Stages)
	}
	if snap.Stages[0].Stage != StageStartSession || snap.Stages[1].Stage != StageSignaling {
		t.Fatalf("stage order = %s, %s", snap.Stages[0].Stage, snap.Stages[1].Stage)
	}
	sig := snap.Stages[1]
	if sig.Samples != 3 || sig.LastMS != 700 {
		t.Fatalf("signaling = %+v, want 3 samples, last 700", sig)
	}
	if sig.P50MS != 700 || sig.P95MS != 900 || sig.P99MS != 900 {
		t.Fatalf("signaling percentiles = %v/%v/%v, want 700/900/900", sig.P50MS, sig.P95MS, sig.P99MS)
	}
}

func TestNegotiationWindowKeepsLatestSamples(t *testing.T) {
	w := newNegotiationWindow(2)
	w.observe(StageOffer, 10*time.Millisecond)
	w.observe(StageOffer, 20*time.Millisecond)
	w.observe(StageOffer, 30*time.Millisecond)

	s := w.snapshot().Stages[0]
	if s.Samples != 2 || s.P50MS != 20 || s.P99MS != 30 {
		t.Fatalf("offer = %+v, want samples 20 and 30 only", s)
	}
}

func TestNegotiationSuccessRateIgnoresSuperseded(t *testing.T) {
	w := newNegotiationWindow(4)
	w.outcome(OutcomeConnected)
	w.outcome(OutcomeConnected)
	w.outcome(OutcomeConnected)
	w.outcome(OutcomeFailed)
	w.outcome(OutcomeSuperseded)

	snap := w.snapshot()
	if snap.SuccessRate != 0.75 {
		t.Fatalf("SuccessRate = %v, want 0.75", snap.SuccessRate)
	}
	if snap.Outcomes[OutcomeSuperseded] != 1 || snap.Outcomes[OutcomeConnected] != 3 {
		t.Fatalf("Outcomes = %v", snap.Outcomes)
	}
}

func TestMetricsObserveStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.ObserveStage(StageClientSecret, 120*time.Millisecond)
	m.ObserveOutcome(OutcomeFailed)
	m.SessionEvents.WithLabelValues("connect").Inc()

	if got := testutil.ToFloat64(m.SessionEvents.WithLabelValues("connect")); got != 1 {
		t.Fatalf("session_events_total = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.NegotiationLatency); n != 1 {
		t.Fatalf("latency series = %d, want 1", n)
	}
	snap := m.Negotiation()
	if len(snap.Stages) != 1 || snap.Stages[0].LastMS != 120 {
		t.Fatalf("stages = %+v, want client_secret=120ms", snap.Stages)
	}
	if snap.Outcomes[OutcomeFailed] != 1 || snap.SuccessRate != 0 {
		t.Fatalf("outcomes = %v rate %v, want one failure", snap.Outcomes, snap.SuccessRate)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveStage(StageOffer, time.Second)
	if got := nilMetrics.Negotiation(); len(got.Stages) != 0 {
		t.Fatalf("nil metrics snapshot = %+v, want empty", got)
	}
	if nilMetrics.Handler() == nil {
		t.Fatalf("nil metrics Handler() = nil")
	}
}
