package state

import (
	"errors"
	"fmt"
)

// OrphanBlockError indicates that the parent of a block is unknown. The block
// is not invalid; the caller should fetch the missing ancestors.
type OrphanBlockError struct {
	error
}

func NewOrphanBlockErrorf(msg string, args ...interface{}) error {
	return OrphanBlockError{
		error: fmt.Errorf(msg, args...),
	}
}

func (e OrphanBlockError) Unwrap() error {
	return e.error
}

// IsOrphanBlockError returns whether the given error is an OrphanBlockError.
func IsOrphanBlockError(err error) bool {
	return errors.As(err, &OrphanBlockError{})
}

// InvalidHeaderError indicates a block header which fails verification
// against its intended signer.
type InvalidHeaderError struct {
	error
}

func NewInvalidHeaderErrorf(msg string, args ...interface{}) error {
	return InvalidHeaderError{
		error: fmt.Errorf(msg, args...),
	}
}

func (e InvalidHeaderError) Unwrap() error {
	return e.error
}

func IsInvalidHeaderError(err error) bool {
	return errors.As(err, &InvalidHeaderError{})
}

// InvalidJustificationError indicates that the justification was not produced
// by the slot owner.
type InvalidJustificationError struct {
	error
}

func NewInvalidJustificationErrorf(msg string, args ...interface{}) error {
	return InvalidJustificationError{
		error: fmt.Errorf(msg, args...),
	}
}

func (e InvalidJustificationError) Unwrap() error {
	return e.error
}

func IsInvalidJustificationError(err error) bool {
	return errors.As(err, &InvalidJustificationError{})
}

// InvalidSuccessorError indicates a block which cannot be linked to its
// predecessor, e.g. because of a wrong number or a decreasing timestamp.
type InvalidSuccessorError struct {
	error
}

func NewInvalidSuccessorErrorf(msg string, args ...interface{}) error {
	return InvalidSuccessorError{
		error: fmt.Errorf(msg, args...),
	}
}

func (e InvalidSuccessorError) Unwrap() error {
	return e.error
}

func IsInvalidSuccessorError(err error) bool {
	return errors.As(err, &InvalidSuccessorError{})
}

// InvalidForkError indicates a fork which cannot be adopted, either because it
// conflicts with finalized blocks or because one of its blocks failed to apply.
type InvalidForkError struct {
	error
}

func NewInvalidForkErrorf(msg string, args ...interface{}) error {
	return InvalidForkError{
		error: fmt.Errorf(msg, args...),
	}
}

func (e InvalidForkError) Unwrap() error {
	return e.error
}

func IsInvalidForkError(err error) bool {
	return errors.As(err, &InvalidForkError{})
}

// DuplicateTransactionError indicates a block replaying a transaction which is
// already applied on the main chain.
type DuplicateTransactionError struct {
	error
}

func NewDuplicateTransactionErrorf(msg string, args ...interface{}) error {
	return DuplicateTransactionError{
		error: fmt.Errorf(msg, args...),
	}
}

func (e DuplicateTransactionError) Unwrap() error {
	return e.error
}

func IsDuplicateTransactionError(err error) bool {
	return errors.As(err, &DuplicateTransactionError{})
}

// IsInvalidBlockError returns true for every error proving the block, or the
// fork it belongs to, invalid.
func IsInvalidBlockError(err error) bool {
	return IsInvalidHeaderError(err) ||
		IsInvalidJustificationError(err) ||
		IsInvalidSuccessorError(err) ||
		IsInvalidForkError(err) ||
		IsDuplicateTransactionError(err)
}
