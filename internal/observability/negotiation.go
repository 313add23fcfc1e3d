package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Negotiation stages observed by the voice controller, in connect order.
const (
	StageStartSession = "start_session"
	StageClientSecret = "client_secret"
	StageMicrophone   = "microphone"
	StageOffer        = "offer"
	StageSignaling    = "signaling"
	StageChannelOpen  = "channel_open"
	StageConnectTotal = "connect_total"
)

var stageOrder = []string{
	StageStartSession,
	StageClientSecret,
	StageMicrophone,
	StageOffer,
	StageSignaling,
	StageChannelOpen,
	StageConnectTotal,
}

// Connect outcomes.
const (
	OutcomeConnected  = "connected"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

type StageLatency struct {
	Stage   string  `json:"stage"`
	Samples int     `json:"samples"`
	LastMS  float64 `json:"last_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
	P99MS   float64 `json:"p99_ms"`
}

type NegotiationSnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []StageLatency `json:"stages"`
	Outcomes    map[string]int `json:"outcomes"`
	// SuccessRate is connected / (connected + failed); superseded attempts
	// were cancelled by the user and do not count.
	SuccessRate float64 `json:"success_rate"`
}

// negotiationWindow keeps the latest samples per connect stage.
type negotiationWindow struct {
	mu       sync.Mutex
	size     int
	samples  map[string][]float64
	outcomes map[string]int
}

func newNegotiationWindow(size int) *negotiationWindow {
	if size <= 0 {
		size = 128
	}
	return &negotiationWindow{
		size:     size,
		samples:  make(map[string][]float64),
		outcomes: make(map[string]int),
	}
}

func (w *negotiationWindow) observe(stage string, d time.Duration) {
	if stage == "" || d < 0 {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	w.mu.Lock()
	defer w.mu.Unlock()
	s := append(w.samples[stage], ms)
	if len(s) > w.size {
		s = s[len(s)-w.size:]
	}
	w.samples[stage] = s
}

func (w *negotiationWindow) outcome(name string) {
	if name == "" {
		return
	}
	w.mu.Lock()
	w.outcomes[name]++
	w.mu.Unlock()
}

func (w *negotiationWindow) snapshot() NegotiationSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := NegotiationSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      []StageLatency{},
		Outcomes:    make(map[string]int, len(w.outcomes)),
	}
	for _, stage := range stageOrder {
		s := w.samples[stage]
		if len(s) == 0 {
			continue
		}
		sorted := slices.Clone(s)
		slices.Sort(sorted)
		snap.Stages = append(snap.Stages, StageLatency{
			Stage:   stage,
			Samples: len(s),
			LastMS:  s[len(s)-1],
			P50MS:   percentile(sorted, 50),
			P95MS:   percentile(sorted, 95),
			P99MS:   percentile(sorted, 99),
		})
	}
	for name, n := range w.outcomes {
		snap.Outcomes[name] = n
	}
	if done := w.outcomes[OutcomeConnected] + w.outcomes[OutcomeFailed]; done > 0 {
		snap.SuccessRate = float64(w.outcomes[OutcomeConnected]) / float64(done)
	}
	return snap
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []float64, p int) float64 {
	rank := int(math.Ceil(float64(p) / 100 * float64(len(sorted))))
	return sorted[max(rank, 1)-1]
}
