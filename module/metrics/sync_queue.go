package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onflow/pos-sync/module"
)

type SyncQueueCollector struct {
	bufferedBlocks        prometheus.Gauge
	droppedBlocks         *prometheus.CounterVec
	missingBlocksRequests prometheus.Counter
	announcements         prometheus.Counter
	acceptedAnnouncements prometheus.Counter
}

var _ module.SyncQueueMetrics = (*SyncQueueCollector)(nil)

func NewSyncQueueCollector(registerer prometheus.Registerer) *SyncQueueCollector {
	factory := promauto.With(registerer)
	return &SyncQueueCollector{
		bufferedBlocks: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "buffered_blocks",
			Namespace: namespacePosSync,
			Subsystem: subsystemSyncQueue,
			Help:      "number of blocks waiting for their parent",
		}),
		droppedBlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "dropped_blocks_total",
			Namespace: namespacePosSync,
			Subsystem: subsystemSyncQueue,
			Help:      "number of discarded blocks by reason",
		}, []string{LabelReason}),
		missingBlocksRequests: factory.NewCounter(prometheus.CounterOpts{
			Name:      "missing_blocks_requests_total",
			Namespace: namespacePosSync,
			Subsystem: subsystemSyncQueue,
			Help:      "number of issued missing blocks requests",
		}),
		announcements: factory.NewCounter(prometheus.CounterOpts{
			Name:      "announcements_total",
			Namespace: namespacePosSync,
			Subsystem: subsystemSyncQueue,
			Help:      "number of received block announcements",
		}),
		acceptedAnnouncements: factory.NewCounter(prometheus.CounterOpts{
			Name:      "accepted_announcements_total",
			Namespace: namespacePosSync,
			Subsystem: subsystemSyncQueue,
			Help:      "number of block announcements which extended the chain",
		}),
	}
}

func (sc *SyncQueueCollector) BufferedBlocks(count int) {
	sc.bufferedBlocks.Set(float64(count))
}

func (sc *SyncQueueCollector) BlockDropped(reason string) {
	sc.droppedBlocks.WithLabelValues(reason).Inc()
}

func (sc *SyncQueueCollector) MissingBlocksRequested() {
	sc.missingBlocksRequests.Inc()
}

func (sc *SyncQueueCollector) AnnouncementReceived() {
	sc.announcements.Inc()
}

func (sc *SyncQueueCollector) AnnouncementAccepted() {
	sc.acceptedAnnouncements.Inc()
}
