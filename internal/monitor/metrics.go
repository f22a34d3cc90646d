package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_probes_total",
		Help: "Probe ticks by outcome.",
	}, []string{"result"})

	penaltiesAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_penalties_applied_total",
		Help: "Penalty records created by this process.",
	})
)

const (
	resultUpdated     = "updated"
	resultFailed      = "failed"
	resultUnreachable = "unreachable"
	resultSkipped     = "skipped"
)
