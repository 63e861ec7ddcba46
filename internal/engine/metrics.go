package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	treeLabel   = "tree"
	resultLabel = "result"

	resultInserted     = "inserted"
	resultDuplicate    = "duplicate"
	resultOutOfBounds  = "out_of_bounds"
	resultRemoved      = "removed"
	resultAbsent       = "absent"
	resultInvalidBound = "invalid_bounds"
)

var (
	nodeSplits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spatialtree_node_splits_total",
		Help: "The number of nodes that have been split into children.",
	}, []string{treeLabel})

	nodeCollapses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spatialtree_node_collapses_total",
		Help: "The number of internal nodes pruned back to leaves.",
	}, []string{treeLabel})

	inserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spatialtree_inserts_total",
		Help: "The number of insertions by result.",
	}, []string{
		treeLabel,
		resultLabel,
	})

	removes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spatialtree_removes_total",
		Help: "The number of removals by result.",
	}, []string{
		treeLabel,
		resultLabel,
	})

	memberCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spatialtree_members",
		Help: "The number of members stored in the trees sharing a name.",
	}, []string{treeLabel})
)

func instrumentSplit(tree string) {
	nodeSplits.
		With(prometheus.Labels{treeLabel: tree}).
		Inc()
}

func instrumentCollapse(tree string) {
	nodeCollapses.
		With(prometheus.Labels{treeLabel: tree}).
		Inc()
}

func instrumentInsert(tree, result string) {
	inserts.
		With(prometheus.Labels{
			treeLabel:   tree,
			resultLabel: result,
		}).
		Inc()
}

func instrumentRemove(tree, result string) {
	removes.
		With(prometheus.Labels{
			treeLabel:   tree,
			resultLabel: result,
		}).
		Inc()
}

func instrumentMembers(tree string, delta int) {
	memberCount.
		With(prometheus.Labels{treeLabel: tree}).
		Add(float64(delta))
}
