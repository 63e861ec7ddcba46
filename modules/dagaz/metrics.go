package dagaz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultLabel = "result"

	resultInserted = "inserted"
	resultMerged   = "merged"
	resultRejected = "rejected"
)

var (
	dagazQuads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dagaz_quads_total",
		Help: "The number of quads submitted to a spatial partition.",
	}, []string{resultLabel})
)

func instrumentQuad(result string) {
	dagazQuads.
		With(prometheus.Labels{resultLabel: result}).
		Inc()
}
