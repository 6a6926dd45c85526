package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onflow/pos-sync/module"
)

type ChainCollector struct {
	pushedBlocks   *prometheus.CounterVec
	headHeight     prometheus.Gauge
	rebranches     prometheus.Counter
	revertedBlocks prometheus.Histogram
	adoptedBlocks  prometheus.Histogram
}

var _ module.ChainMetrics = (*ChainCollector)(nil)

func NewChainCollector(registerer prometheus.Registerer) *ChainCollector {
	factory := promauto.With(registerer)
	return &ChainCollector{
		pushedBlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "pushed_blocks_total",
			Namespace: namespacePosSync,
			Subsystem: subsystemChain,
			Help:      "number of pushed blocks by outcome",
		}, []string{LabelOutcome}),
		headHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "head_height",
			Namespace: namespacePosSync,
			Subsystem: subsystemChain,
			Help:      "height of the main chain head",
		}),
		rebranches: factory.NewCounter(prometheus.CounterOpts{
			Name:      "rebranches_total",
			Namespace: namespacePosSync,
			Subsystem: subsystemChain,
			Help:      "number of adopted forks",
		}),
		revertedBlocks: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "rebranch_reverted_blocks",
			Namespace: namespacePosSync,
			Subsystem: subsystemChain,
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
			Help:      "number of main chain blocks reverted per rebranch",
		}),
		adoptedBlocks: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "rebranch_adopted_blocks",
			Namespace: namespacePosSync,
			Subsystem: subsystemChain,
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
			Help:      "number of fork blocks adopted per rebranch",
		}),
	}
}

func (cc *ChainCollector) BlockPushed(outcome string) {
	cc.pushedBlocks.WithLabelValues(outcome).Inc()
}

func (cc *ChainCollector) HeadHeight(height uint32) {
	cc.headHeight.Set(float64(height))
}

func (cc *ChainCollector) Rebranched(reverted int, adopted int) {
	cc.rebranches.Inc()
	cc.revertedBlocks.Observe(float64(reverted))
	cc.adoptedBlocks.Observe(float64(adopted))
}
