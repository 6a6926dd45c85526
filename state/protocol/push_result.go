package protocol

// PushResult is the outcome of a successful push.
type PushResult int

const (
	// PushResultKnown means the block was already stored; nothing changed.
	PushResultKnown PushResult = iota + 1
	// PushResultExtended means the block became the new head.
	PushResultExtended
	// PushResultRebranched means the block's fork was adopted as main chain.
	PushResultRebranched
	// PushResultForked means the block was stored as a fork candidate.
	PushResultForked
	// PushResultIgnored means the block is on an inferior chain and was discarded.
	PushResultIgnored
)

func (r PushResult) String() string {
	switch r {
	case PushResultKnown:
		return "known"
	case PushResultExtended:
		return "extended"
	case PushResultRebranched:
		return "rebranched"
	case PushResultForked:
		return "forked"
	case PushResultIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// ExtendsChain returns true if the head moved because of the push.
func (r PushResult) ExtendsChain() bool {
	return r == PushResultExtended || r == PushResultRebranched
}
