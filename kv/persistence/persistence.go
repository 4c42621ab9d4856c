// Package persistence runs atomic transactions against a local storage
// backend. Work is expressed as a chain of deferred values so that every step
// is issued while the storage transaction is still open, and commit listeners
// run only after a successful commit.
package persistence

import (
	"context"

	"github.com/pingcap-incubator/tinydoc/kv/config"
	"github.com/pingcap-incubator/tinydoc/kv/util/deferred"
	"github.com/pingcap/errors"
)

// Work is the body of a transaction.
type Work func(txn *Transaction) *deferred.Value[any]

// Persistence is implemented by MemoryPersistence and DurablePersistence. The
// two behave identically with respect to commit, abort and listeners.
type Persistence interface {
	Start() error
	Shutdown() error
	Started() bool
	// RunTransaction opens a transaction, runs work on it and commits if the
	// chain work returns fulfills. Any rejection aborts the transaction and is
	// returned unchanged.
	RunTransaction(ctx context.Context, action string, mode Mode, work Work) (any, error)
}

// RunTransaction is the typed form of Persistence.RunTransaction.
func RunTransaction[T any](ctx context.Context, p Persistence, action string, mode Mode,
	work func(txn *Transaction) *deferred.Value[T]) (T, error) {
	res, err := p.RunTransaction(ctx, action, mode, func(txn *Transaction) *deferred.Value[any] {
		v := work(txn)
		if v == nil {
			return nil
		}
		return deferred.Then(v, func(t T) (any, error) { return t, nil })
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := res.(T)
	return t, nil
}

// New builds the persistence selected by conf.Backend. It is not started.
func New(conf *config.Config, opts ...Option) (Persistence, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	opts = append([]Option{WithPrimaryChecker(StaticPrimary(conf.Primary))}, opts...)
	switch conf.Backend {
	case config.BackendMemory:
		return NewMemoryPersistence(opts...), nil
	case config.BackendDurable:
		return NewDurablePersistence(conf, opts...), nil
	}
	return nil, errors.Errorf("unknown backend %q", conf.Backend)
}
