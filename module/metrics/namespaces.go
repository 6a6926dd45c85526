package metrics

const (
	namespacePosSync = "pos_sync"
)

const (
	subsystemChain     = "chain"
	subsystemSyncQueue = "sync_queue"
	subsystemRequester = "requester"
)
