package storage

import (
	"github.com/pingcap-incubator/tinydoc/kv/util/engine_util"
	"github.com/pingcap/errors"
)

// Storage represents the local storage engine behind a persistence. It
// supplies atomic multi-key transactions over column families and nothing
// else: it knows nothing about documents, overlays or the primary role.
type Storage interface {
	Start() error
	Stop() error
	// Begin opens a transaction. update selects a read-write transaction.
	Begin(update bool) (Txn, error)
}

// Txn is a single atomic unit of reads and writes. All reads observe one
// consistent snapshot plus the transaction's own writes. Either every write
// is applied by Commit or none is. A Txn is not safe for concurrent use.
type Txn interface {
	// GetCF returns (nil, nil) when key is absent.
	GetCF(cf string, key []byte) ([]byte, error)
	SetCF(cf string, key, val []byte) error
	DeleteCF(cf string, key []byte) error
	// IterCF iterates one column family in key order. Callers must Close the
	// iterator before opening another one on the same read-write Txn.
	IterCF(cf string) engine_util.DBIterator
	Commit() error
	// Discard releases the transaction without applying its writes. It is a
	// no-op after Commit.
	Discard()
}

var (
	ErrReadOnlyTxn = errors.New("storage: write in read-only transaction")
	ErrTxnClosed   = errors.New("storage: transaction already finished")
	ErrNotStarted  = errors.New("storage: not started")
)

// ErrBackendUnavailable is returned when a backend cannot run on this platform
// or at the configured location.
type ErrBackendUnavailable struct {
	Backend string
	Reason  string
}

func (e *ErrBackendUnavailable) Error() string {
	return "backend " + e.Backend + " unavailable: " + e.Reason
}

// ErrTxnAborted is returned when the engine aborts a transaction on its own,
// e.g. on a write conflict or when the transaction grows past an engine limit.
type ErrTxnAborted struct {
	Cause error
	// Retryable marks transient aborts such as conflicts.
	Retryable bool
}

func (e *ErrTxnAborted) Error() string {
	if e.Retryable {
		return "transaction aborted (retryable): " + e.Cause.Error()
	}
	return "transaction aborted: " + e.Cause.Error()
}

func (e *ErrTxnAborted) Unwrap() error {
	return e.Cause
}
