package metrics

const (
	LabelOutcome = "outcome"
	LabelReason  = "reason"
)

// reasons for discarding a block before it reached the chain
const (
	DropReasonOutsideWindow = "outside_window"
	DropReasonBufferFull    = "buffer_full"
	DropReasonInvalidParent = "invalid_parent"
	DropReasonNoSyncedPeers = "no_synced_peers"
)
