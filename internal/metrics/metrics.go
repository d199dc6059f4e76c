// Package metrics exposes the Prometheus counters and gauges the ledger
// core's collaborators scrape. Grounded on the teacher's already-indirect
// client_golang dependency (pulled in transitively via libp2p), promoted
// here to a direct, exercised dependency.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LedgerPostingsTotal counts every ledger transaction posted,
	// labeled by template name and whether it was a fresh post or an
	// idempotent no-op replay.
	LedgerPostingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerd",
		Name:      "ledger_postings_total",
		Help:      "Ledger transactions posted, by template and outcome.",
	}, []string{"template", "outcome"})

	// UTXOTransitionsTotal counts UTXO repository state transitions,
	// labeled by the operation that caused them.
	UTXOTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerd",
		Name:      "utxo_transitions_total",
		Help:      "UTXO lifecycle transitions, by operation.",
	}, []string{"operation"})

	// OutboxLagAccounts is registered as the gauge of accounts with at
	// least one undelivered journal event. Nothing in this module sets
	// it, so it reports zero.
	OutboxLagAccounts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerd",
		Name:      "outbox_lag_accounts",
		Help:      "Accounts with at least one undelivered journal event.",
	})
)

// MustRegister registers every collector above against reg. Call once at
// startup; panics on duplicate registration, matching
// prometheus.MustRegister's own contract.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(LedgerPostingsTotal, UTXOTransitionsTotal, OutboxLagAccounts)
}
