package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileCorrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigescrow_reconcile_corrections_total",
		Help: "Persisted job fields corrected by reconciliation, by field and reason.",
	}, []string{"field", "reason"})

	mirrorReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigescrow_mirror_reads_total",
		Help: "On-chain job mirror reads, by result state.",
	}, []string{"state"})

	freelancerDivergence = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigescrow_freelancer_divergence_total",
		Help: "Reads where the chain names a different freelancer than the persisted job.",
	})

	confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigescrow_confirmations_total",
		Help: "Completion confirmations, by role and outcome.",
	}, []string{"role", "outcome"})

	releases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigescrow_payment_release_total",
		Help: "Payment-release attempts, by the next action they produced.",
	}, []string{"action"})
)
