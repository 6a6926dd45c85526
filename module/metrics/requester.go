package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onflow/pos-sync/module"
)

type RequesterCollector struct {
	requestsSent   prometheus.Counter
	requestsFailed prometheus.Counter
	blocksReceived prometheus.Counter
	syncedPeers    prometheus.Gauge
	connectedPeers prometheus.Gauge
}

var _ module.RequesterMetrics = (*RequesterCollector)(nil)

func NewRequesterCollector(registerer prometheus.Registerer) *RequesterCollector {
	factory := promauto.With(registerer)
	return &RequesterCollector{
		requestsSent: factory.NewCounter(prometheus.CounterOpts{
			Name:      "requests_sent_total",
			Namespace: namespacePosSync,
			Subsystem: subsystemRequester,
			Help:      "number of missing blocks requests sent to peers",
		}),
		requestsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name:      "requests_failed_total",
			Namespace: namespacePosSync,
			Subsystem: subsystemRequester,
			Help:      "number of missing blocks requests which failed on every attempt",
		}),
		blocksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name:      "blocks_received_total",
			Namespace: namespacePosSync,
			Subsystem: subsystemRequester,
			Help:      "number of blocks received in responses",
		}),
		syncedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "synced_peers",
			Namespace: namespacePosSync,
			Subsystem: subsystemRequester,
			Help:      "number of peers synced with the local chain",
		}),
		connectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "connected_peers",
			Namespace: namespacePosSync,
			Subsystem: subsystemRequester,
			Help:      "number of connected peers",
		}),
	}
}

func (rc *RequesterCollector) RequestSent() {
	rc.requestsSent.Inc()
}

func (rc *RequesterCollector) RequestFailed() {
	rc.requestsFailed.Inc()
}

func (rc *RequesterCollector) BlocksReceived(count int) {
	rc.blocksReceived.Add(float64(count))
}

func (rc *RequesterCollector) Peers(synced int, connected int) {
	rc.syncedPeers.Set(float64(synced))
	rc.connectedPeers.Set(float64(connected))
}
