package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var remoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "magpie_remote_call_attempts",
	Help: "Number of remote call attempts, by operation and outcome",
}, []string{"op", "outcome"})
