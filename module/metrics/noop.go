package metrics

import (
	"github.com/onflow/pos-sync/module"
)

type NoopCollector struct{}

var (
	_ module.ChainMetrics     = (*NoopCollector)(nil)
	_ module.SyncQueueMetrics = (*NoopCollector)(nil)
	_ module.RequesterMetrics = (*NoopCollector)(nil)
)

func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (nc *NoopCollector) BlockPushed(outcome string)           {}
func (nc *NoopCollector) HeadHeight(height uint32)             {}
func (nc *NoopCollector) Rebranched(reverted int, adopted int) {}
func (nc *NoopCollector) BufferedBlocks(count int)             {}
func (nc *NoopCollector) BlockDropped(reason string)           {}
func (nc *NoopCollector) MissingBlocksRequested()              {}
func (nc *NoopCollector) AnnouncementReceived()                {}
func (nc *NoopCollector) AnnouncementAccepted()                {}
func (nc *NoopCollector) RequestSent()                         {}
func (nc *NoopCollector) RequestFailed()                       {}
func (nc *NoopCollector) BlocksReceived(count int)             {}
func (nc *NoopCollector) Peers(synced int, connected int)      {}
