package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	defaultOnce   sync.Once
	defaultLedger *Ledger
)

// Ledger holds the counters for points and redemption activity.
type Ledger struct {
	mutations   *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	redemptions *prometheus.CounterVec
	submissions *prometheus.CounterVec
	cacheErrors *prometheus.CounterVec
}

// Default returns the process-wide ledger metrics registered on the default registerer.
func Default() *Ledger {
	defaultOnce.Do(func() {
		defaultLedger = New(prometheus.DefaultRegisterer)
	})
	return defaultLedger
}

// New builds ledger metrics and registers them on registerer (default registerer when nil).
// Collectors already registered are reused.
func New(registerer prometheus.Registerer) *Ledger {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	l := &Ledger{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_ledger_mutations_total",
			Help: "Committed wallet mutations by transaction type.",
		}, []string{"type"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_occ_conflicts_total",
			Help: "Guarded updates that matched no row, by aggregate.",
		}, []string{"aggregate"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_redemptions_total",
			Help: "Benefit redemption transitions by resulting status.",
		}, []string{"status"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_mission_submissions_total",
			Help: "Mission submission transitions by resulting status.",
		}, []string{"status"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_cache_errors_total",
			Help: "Cache collaborator failures by operation.",
		}, []string{"op"}),
	}

	l.mutations = register(registerer, l.mutations)
	l.conflicts = register(registerer, l.conflicts)
	l.redemptions = register(registerer, l.redemptions)
	l.submissions = register(registerer, l.submissions)
	l.cacheErrors = register(registerer, l.cacheErrors)
	return l
}

func register(registerer prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (l *Ledger) ObserveMutation(txType string) {
	l.mutations.WithLabelValues(txType).Inc()
}

func (l *Ledger) ObserveConflict(aggregate string) {
	l.conflicts.WithLabelValues(aggregate).Inc()
}

func (l *Ledger) ObserveRedemption(status string) {
	l.redemptions.WithLabelValues(status).Inc()
}

func (l *Ledger) ObserveSubmission(status string) {
	l.submissions.WithLabelValues(status).Inc()
}

func (l *Ledger) ObserveCacheError(op string) {
	l.cacheErrors.WithLabelValues(op).Inc()
}

// Conflicts exposes the conflict counter for a label, mainly for tests.
func (l *Ledger) Conflicts(aggregate string) prometheus.Counter {
	return l.conflicts.WithLabelValues(aggregate)
}

// Mutations exposes the mutation counter for a label, mainly for tests.
func (l *Ledger) Mutations(txType string) prometheus.Counter {
	return l.mutations.WithLabelValues(txType)
}
