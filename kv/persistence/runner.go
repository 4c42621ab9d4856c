package persistence

import (
	"context"
	"time"

	"github.com/pingcap-incubator/tinydoc/kv/storage"
	"github.com/pingcap-incubator/tinydoc/kv/util/deferred"
	"github.com/pingcap-incubator/tinydoc/log"
	"go.uber.org/atomic"
)

// runner drives transactions for one storage backend. Both persistence
// variants embed it and differ only in the storage they hand it.
type runner struct {
	name    string
	storage storage.Storage
	primary PrimaryChecker

	started atomic.Bool
	nextID  atomic.Uint64
}

func (r *runner) Started() bool {
	return r.started.Load()
}

func (r *runner) RunTransaction(ctx context.Context, action string, mode Mode, work Work) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.started.Load() {
		return nil, &ErrFailedPrecondition{Action: action, Msg: r.name + " persistence is not started"}
	}
	if mode == ReadWritePrimary && !r.primary.IsPrimary() {
		transactionCounter.WithLabelValues(mode.String(), resultRejectedPrecondition).Inc()
		return nil, &ErrFailedPrecondition{Action: action, Msg: "the primary role is required but not held"}
	}

	begin := time.Now()
	stxn, err := r.storage.Begin(mode.writable())
	if err != nil {
		transactionCounter.WithLabelValues(mode.String(), resultAborted).Inc()
		return nil, err
	}
	txn := newTransaction(r.nextID.Inc(), action, mode, stxn)
	log.Debugf("txn %d (%s): begin %s on %s", txn.id, action, mode, r.name)

	result := deferred.Next(deferred.Invoke(func() *deferred.Value[any] { return work(txn) }),
		func(v any) *deferred.Value[any] {
			if err := stxn.Commit(); err != nil {
				txn.finish(Aborted)
				log.Warnf("txn %d (%s): commit failed: %v", txn.id, action, err)
				return deferred.Rejected[any](err)
			}
			log.Debugf("txn %d (%s): committed", txn.id, action)
			txn.runListeners(txn.finish(Committed))
			return deferred.Resolved(v)
		},
		func(err error) *deferred.Value[any] {
			stxn.Discard()
			txn.finish(Aborted)
			log.Debugf("txn %d (%s): aborted: %v", txn.id, action, err)
			return deferred.Rejected[any](err)
		})

	v, err := result.Await()
	// Releases the storage transaction if a continuation panicked before
	// committing. No-op otherwise.
	stxn.Discard()
	txn.finish(Aborted)

	transactionDuration.WithLabelValues(mode.String()).Observe(time.Since(begin).Seconds())
	if err != nil {
		transactionCounter.WithLabelValues(mode.String(), resultAborted).Inc()
		return nil, err
	}
	transactionCounter.WithLabelValues(mode.String(), resultCommitted).Inc()
	return v, nil
}
