package module

import (
	"errors"

	"github.com/onflow/pos-sync/module/irrecoverable"
)

// ErrMultipleStartup is returned when a component is started more than once.
var ErrMultipleStartup = errors.New("component may only be started once")

// ReadyDoneAware provides an interface to wait for component startup and shutdown.
// Components implementing it support a single start-stop cycle only.
type ReadyDoneAware interface {
	// Ready returns a channel that is closed once startup has completed.
	Ready() <-chan struct{}

	// Done returns a channel that is closed once shutdown has completed.
	Done() <-chan struct{}
}

// Startable provides an interface to start a component. Once started, the
// component can be stopped by cancelling the given context.
type Startable interface {
	// Start starts the component. Must only be called once; panics otherwise.
	Start(irrecoverable.SignalerContext)
}
