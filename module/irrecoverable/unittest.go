package irrecoverable

import (
	"context"
	"runtime"
	"testing"
)

// MockSignalerContext fails the test when an error is thrown.
type MockSignalerContext struct {
	context.Context
	t *testing.T
}

var _ SignalerContext = &MockSignalerContext{}

func (m MockSignalerContext) sealed() {}

func (m MockSignalerContext) Throw(err error) {
	m.t.Fatalf("mock signaler context received error: %v", err)
}

func NewMockSignalerContext(t *testing.T, ctx context.Context) *MockSignalerContext {
	return &MockSignalerContext{
		Context: ctx,
		t:       t,
	}
}

func NewMockSignalerContextWithCancel(t *testing.T, parent context.Context) (*MockSignalerContext, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	return NewMockSignalerContext(t, ctx), cancel
}

// ExpectingSignalerContext records thrown errors instead of failing the test.
type ExpectingSignalerContext struct {
	context.Context
	errs chan error
}

var _ SignalerContext = &ExpectingSignalerContext{}

func (e *ExpectingSignalerContext) sealed() {}

// Throw records the error and terminates the calling goroutine.
func (e *ExpectingSignalerContext) Throw(err error) {
	select {
	case e.errs <- err:
	default:
	}
	runtime.Goexit()
}

// Errors returns the channel receiving the first thrown error.
func (e *ExpectingSignalerContext) Errors() <-chan error {
	return e.errs
}

// NewExpectingSignalerContext returns a signaler context which captures the
// first thrown error.
func NewExpectingSignalerContext(ctx context.Context) *ExpectingSignalerContext {
	return &ExpectingSignalerContext{
		Context: ctx,
		errs:    make(chan error, 1),
	}
}
