package persistence

import (
	"fmt"

	"github.com/pingcap-incubator/tinydoc/kv/storage"
	"github.com/pingcap/errors"
)

// ErrBackendUnavailable is returned by Start, and by the probes, when a
// backend cannot run here.
type ErrBackendUnavailable = storage.ErrBackendUnavailable

// ErrTransactionAborted is a storage level abort: a write conflict, an engine
// limit or an I/O failure while committing.
type ErrTransactionAborted = storage.ErrTxnAborted

// ErrFailedPrecondition is returned before any storage transaction is opened,
// when the caller is not allowed to run the transaction at all.
type ErrFailedPrecondition struct {
	Action string
	Msg    string
}

func (e *ErrFailedPrecondition) Error() string {
	return fmt.Sprintf("failed precondition for %s: %s", e.Action, e.Msg)
}

// IsRetryable reports whether err is a transient abort worth retrying.
func IsRetryable(err error) bool {
	aborted, ok := errors.Cause(err).(*ErrTransactionAborted)
	return ok && aborted.Retryable
}
