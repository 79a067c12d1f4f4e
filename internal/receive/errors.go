package receive

import (
	"errors"
	"fmt"
)

// ErrMissingContent flags a receive action invoked without decrypted
// content. That is a programming invariant violation, never a normal
// runtime condition, so it is surfaced instead of swallowed.
var ErrMissingContent = errors.New("receive action invoked without decrypted content")

// StorageError wraps a persistence or summary-update failure. Fatal to
// the current action; the transport layer decides on redelivery.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
