package irrecoverable

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
)

// Signaler sends irrecoverable errors to an error channel.
type Signaler struct {
	errChan chan error
}

// NewSignaler returns a signaler and the channel it reports to. Only the first
// thrown error is delivered; subsequent ones are dropped.
func NewSignaler() (*Signaler, <-chan error) {
	errChan := make(chan error, 1)
	return &Signaler{errChan: errChan}, errChan
}

// Throw is a narrow drop-in replacement for panic or log.Fatal. It reports the
// error and terminates the calling goroutine.
func (s *Signaler) Throw(err error) {
	select {
	case s.errChan <- err:
	default:
	}
	runtime.Goexit()
}

// SignalerContext is a context that can report irrecoverable errors of the
// goroutines it is threaded through.
type SignalerContext interface {
	context.Context
	Throw(err error)
	sealed() // only WithSignaler produces instances
}

type signalerCtx struct {
	context.Context
	*Signaler
}

func (sc signalerCtx) sealed() {}

// WithSignaler is the one way of getting a SignalerContext.
func WithSignaler(parent context.Context) (SignalerContext, <-chan error) {
	sig, errChan := NewSignaler()
	return &signalerCtx{parent, sig}, errChan
}

// Throw reports an irrecoverable error through the given context if it is a
// SignalerContext. Any other context is a programming error which terminates
// the process.
func Throw(ctx context.Context, err error) {
	signalerAbleContext, ok := ctx.(SignalerContext)
	if ok {
		signalerAbleContext.Throw(err)
	}
	log.Fatalf("irrecoverable error signaler not found for context, unhandled irrecoverable error: %v", err)
}

// exception wraps an error which is not part of the expected error taxonomy of
// the returning function.
type exception struct {
	err error
}

// NewException wraps the error as an exception.
func NewException(err error) error {
	return exception{err: err}
}

// NewExceptionf creates a formatted exception.
func NewExceptionf(msg string, args ...interface{}) error {
	return exception{err: fmt.Errorf(msg, args...)}
}

func (e exception) Error() string {
	return fmt.Sprintf("[exception!] %s", e.err.Error())
}

func (e exception) Unwrap() error {
	return e.err
}

// IsException returns true if the error is, or wraps, an exception.
func IsException(err error) bool {
	var e exception
	return errors.As(err, &e)
}
