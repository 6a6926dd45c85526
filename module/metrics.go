package module

// ChainMetrics tracks the outcome of block pushes.
type ChainMetrics interface {
	// BlockPushed counts a push by its result or error class.
	BlockPushed(outcome string)

	// HeadHeight reports the height of the main chain head.
	HeadHeight(height uint32)

	// Rebranched reports the number of reverted and adopted blocks of a rebranch.
	Rebranched(reverted int, adopted int)
}

// SyncQueueMetrics tracks block buffering and announcement handling.
type SyncQueueMetrics interface {
	// BufferedBlocks reports the number of blocks held in the buffer.
	BufferedBlocks(count int)

	// BlockDropped counts a block that was discarded, labelled by reason.
	BlockDropped(reason string)

	// MissingBlocksRequested counts a missing blocks request.
	MissingBlocksRequested()

	// AnnouncementReceived counts a gossiped block announcement.
	AnnouncementReceived()

	// AnnouncementAccepted counts an announcement which extended the chain.
	AnnouncementAccepted()
}

// RequesterMetrics tracks missing blocks requests to peers.
type RequesterMetrics interface {
	// RequestSent counts a request sent to a peer.
	RequestSent()

	// RequestFailed counts a request which failed on all attempts.
	RequestFailed()

	// BlocksReceived counts blocks received in a response.
	BlocksReceived(count int)

	// Peers reports the number of synced and connected peers.
	Peers(synced int, connected int)
}
