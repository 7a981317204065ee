package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ticket_inventory"

// Outcome labels
const (
	OutcomeOK             = "ok"
	OutcomeSoldOut        = "sold_out"
	OutcomeNotFound       = "not_found"
	OutcomeDeleted        = "deleted"
	OutcomeConsumed       = "consumed"
	OutcomeInvalid        = "invalid"
	OutcomeAlreadyUsed    = "already_used"
	OutcomeWrongEvent     = "wrong_event"
	OutcomeTenantMismatch = "tenant_mismatch"
	OutcomeNoop           = "noop"
	OutcomeError          = "error"
	OutcomeDeadLettered   = "dead_lettered"
)

// Metrics holds the Prometheus collectors of the inventory core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Reservations      *prometheus.CounterVec
	Releases          *prometheus.CounterVec
	TicketsIssued     *prometheus.CounterVec
	CheckIns          *prometheus.CounterVec
	OutboxRelayed     *prometheus.CounterVec
	LedgerSnapshots   prometheus.Counter
	OperationDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		Releases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Slot releases by outcome",
		}, []string{"outcome"}),
		TicketsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_issued_total",
			Help:      "Ticket issuance attempts by outcome",
		}, []string{"outcome"}),
		CheckIns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Door scans by outcome",
		}, []string{"outcome"}),
		OutboxRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relayed_total",
			Help:      "Outbox messages handled by the relay, by outcome",
		}, []string{"outcome"}),
		LedgerSnapshots: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_snapshots_total",
			Help:      "Sold count snapshots copied from the ledger to the event store",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of core operations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

// RecordReservation counts a reservation attempt
func (m *Metrics) RecordReservation(outcome string) {
	if m == nil {
		return
	}
	m.Reservations.WithLabelValues(outcome).Inc()
}

// RecordRelease counts a release attempt
func (m *Metrics) RecordRelease(outcome string) {
	if m == nil {
		return
	}
	m.Releases.WithLabelValues(outcome).Inc()
}

// RecordIssue counts an issuance attempt
func (m *Metrics) RecordIssue(outcome string) {
	if m == nil {
		return
	}
	m.TicketsIssued.WithLabelValues(outcome).Inc()
}

// RecordCheckIn counts a door scan
func (m *Metrics) RecordCheckIn(outcome string) {
	if m == nil {
		return
	}
	m.CheckIns.WithLabelValues(outcome).Inc()
}

// RecordOutbox counts a relayed outbox message
func (m *Metrics) RecordOutbox(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutboxRelayed.WithLabelValues(outcome).Add(float64(n))
}

// RecordSnapshots counts stored ledger snapshots
func (m *Metrics) RecordSnapshots(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LedgerSnapshots.Add(float64(n))
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
