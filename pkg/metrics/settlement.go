package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "marketledger"

// Checkout outcomes other than success are labelled with the error code;
// OutcomeError covers failures that carry no code.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// SettlementMetrics counts the money-moving operations of the service.
// A nil receiver is valid and records nothing.
type SettlementMetrics struct {
	checkoutAttempts *prometheus.CounterVec
	ledgerEntries    prometheus.Counter
	payoutsCreated   prometheus.Counter
	outboxPublished  *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	m := &SettlementMetrics{
		checkoutAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_attempts_total",
			Help:      "Checkout attempts partitioned by outcome.",
		}, []string{"outcome"}),
		ledgerEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_ledger_entries_created_total",
			Help:      "Commission ledger entries written.",
		}),
		payoutsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_payouts_created_total",
			Help:      "Vendor payouts created by the aggregator.",
		}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox rows handled by the publisher partitioned by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.checkoutAttempts, m.ledgerEntries, m.payoutsCreated, m.outboxPublished)
	return m
}

func (m *SettlementMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkoutAttempts == nil {
		return
	}
	m.checkoutAttempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *SettlementMetrics) AddLedgerEntries(n int) {
	if m == nil || m.ledgerEntries == nil || n <= 0 {
		return
	}
	m.ledgerEntries.Add(float64(n))
}

func (m *SettlementMetrics) AddPayouts(n int) {
	if m == nil || m.payoutsCreated == nil || n <= 0 {
		return
	}
	m.payoutsCreated.Add(float64(n))
}

// IncOutbox records a publisher result: published, failed or dead_lettered.
func (m *SettlementMetrics) IncOutbox(result string) {
	if m == nil || m.outboxPublished == nil {
		return
	}
	m.outboxPublished.WithLabelValues(normalizeLabel(result)).Inc()
}
