package storage

import (
	"errors"
)

var (
	// ErrNotFound is returned by storage when a key does not exist. Functions of
	// the badger implementation translate badger.ErrKeyNotFound into it.
	ErrNotFound = errors.New("key not found")

	// ErrAlreadyExists is returned when inserting a key which is already present.
	ErrAlreadyExists = errors.New("key already exists")
)
