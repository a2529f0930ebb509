package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records submit/confirmation behavior of the ledger adapter
// and how often the orchestrator had to fall back to local attestation.
type LedgerMetrics struct {
	submitDuration *prometheus.HistogramVec
	confirmations  *prometheus.CounterVec
	fallbacks      prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	submitDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_submit_duration_seconds",
		Help:    "Duration of ledger submit calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_confirmations_total",
		Help: "Ledger confirmation outcomes.",
	}, []string{"operation", "outcome"})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "review_ledger_fallbacks_total",
		Help: "Reviews persisted as locally attested after a ledger failure.",
	})
	reg.MustRegister(submitDuration, confirmations, fallbacks)
	return &LedgerMetrics{
		submitDuration: submitDuration,
		confirmations:  confirmations,
		fallbacks:      fallbacks,
	}
}

// ObserveSubmit records the duration of a submit call.
func (m *LedgerMetrics) ObserveSubmit(operation string, duration time.Duration) {
	if m == nil || m.submitDuration == nil {
		return
	}
	m.submitDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncConfirmation counts a confirmation outcome (confirmed, timeout, rejected, error).
func (m *LedgerMetrics) IncConfirmation(operation, outcome string) {
	if m == nil || m.confirmations == nil {
		return
	}
	m.confirmations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncFallback counts a review that was downgraded to local attestation.
func (m *LedgerMetrics) IncFallback() {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.Inc()
}

// RedemptionMetrics counts redemption outcomes by error code.
type RedemptionMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewRedemptionMetrics registers the redemption metrics on the provided registerer.
func NewRedemptionMetrics(reg prometheus.Registerer) *RedemptionMetrics {
	if reg == nil {
		return &RedemptionMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "code_redemptions_total",
		Help: "Delivery code redemption attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(outcomes)
	return &RedemptionMetrics{outcomes: outcomes}
}

// IncOutcome counts one redemption attempt with the given outcome label.
func (m *RedemptionMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return strings.ReplaceAll(value, " ", "_")
}
