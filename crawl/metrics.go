package crawl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var accountsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "magpie_accounts_processed",
	Help: "Number of accounts processed, by final state",
}, []string{"state"})

var accountVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "magpie_account_verdicts",
	Help: "Number of accounts classified, by verdict",
}, []string{"verdict"})

var accountScores = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "magpie_account_scores",
	Help:    "Distribution of account scores",
	Buckets: prometheus.LinearBuckets(-10, 5, 8),
})

var analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "magpie_account_analysis_duration_seconds",
	Help:    "Time spent analyzing one account, including remote calls",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
})

var auditFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "magpie_audit_failures",
	Help: "Number of audit log or set writes which failed to persist",
})
