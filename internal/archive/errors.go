package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentityMismatch means the signed-in account is not the one the
	// caller expected. It is an authentication failure.
	ErrIdentityMismatch = errors.New("archive: signed-in account does not match expected identity")

	// ErrDestination means the local archive tree cannot be written.
	ErrDestination = errors.New("archive: destination not writable")

	// ErrHashMismatch means downloaded content did not match the remote hash.
	ErrHashMismatch = errors.New("archive: content hash mismatch")
)

// TransferError records an item that could not be archived after all
// attempts. The run continues past it.
type TransferError struct {
	ItemID     string
	RemotePath string
	Attempts   int
	Err        error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("archive: transferring %s failed after %d attempt(s): %v", e.RemotePath, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
