package persistence

import (
	"context"
	"testing"

	"github.com/pingcap-incubator/tinydoc/kv/config"
	"github.com/pingcap-incubator/tinydoc/kv/storage"
	"github.com/pingcap-incubator/tinydoc/kv/util/deferred"
	"github.com/pingcap-incubator/tinydoc/kv/util/engine_util"
	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name string
	open func(t *testing.T, opts ...Option) Persistence
}

var backends = []backend{
	{"memory", func(t *testing.T, opts ...Option) Persistence {
		return NewMemoryPersistence(opts...)
	}},
	{"durable", func(t *testing.T, opts ...Option) Persistence {
		return NewDurablePersistence(config.NewTestConfig(t.TempDir()), opts...)
	}},
}

// forEachBackend runs test against a started instance of every backend.
func forEachBackend(t *testing.T, test func(t *testing.T, p Persistence), opts ...Option) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			p := b.open(t, opts...)
			require.Nil(t, p.Start())
			t.Cleanup(func() { p.Shutdown() })
			test(t, p)
		})
	}
}

var testKey = []byte("key")

func asAny[T any](v *deferred.Value[T]) *deferred.Value[any] {
	return deferred.Then(v, func(t T) (any, error) { return t, nil })
}

func readKey(t *testing.T, p Persistence) []byte {
	val, err := RunTransaction(context.Background(), p, "read", ReadOnly,
		func(txn *Transaction) *deferred.Value[[]byte] {
			return txn.GetCF(engine_util.CfOverlay, testKey)
		})
	require.Nil(t, err)
	return val
}

func TestListenersRunInOrderAfterCommit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persistence) {
		var calls []int
		pending := deferred.New[int]()
		go pending.Resolve(3)

		_, err := p.RunTransaction(context.Background(), "write", ReadWrite, func(txn *Transaction) *deferred.Value[any] {
			txn.AddOnCommittedListener(func() { calls = append(calls, 1) })
			txn.AddOnCommittedListener(func() { calls = append(calls, 2) })
			return deferred.Next(pending, func(v int) *deferred.Value[any] {
				txn.AddOnCommittedListener(func() { calls = append(calls, v) })
				assert.Empty(t, calls)
				return asAny(txn.SetCF(engine_util.CfOverlay, testKey, []byte("v")))
			}, nil)
		})
		require.Nil(t, err)
		assert.Equal(t, []int{1, 2, 3}, calls)
		assert.Equal(t, []byte("v"), readKey(t, p))
	})
}

func TestRejectionSkipsListeners(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persistence) {
		injected := errors.New("injected")
		fired := false
		var handle *Transaction

		_, err := p.RunTransaction(context.Background(), "write", ReadWrite, func(txn *Transaction) *deferred.Value[any] {
			handle = txn
			txn.AddOnCommittedListener(func() { fired = true })
			return deferred.Next(txn.SetCF(engine_util.CfOverlay, testKey, []byte("v")),
				func(struct{}) *deferred.Value[any] { return deferred.Rejected[any](injected) }, nil)
		})
		assert.Equal(t, injected, err)
		assert.False(t, fired)
		assert.Equal(t, Aborted, handle.State())
		assert.Nil(t, readKey(t, p))
	})
}

func TestPanicInWorkRejects(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persistence) {
		injected := errors.New("boom")
		_, err := p.RunTransaction(context.Background(), "panics", ReadWrite, func(txn *Transaction) *deferred.Value[any] {
			panic(injected)
		})
		assert.Equal(t, injected, err)

		_, err = p.RunTransaction(context.Background(), "panics", ReadOnly, func(txn *Transaction) *deferred.Value[any] {
			return deferred.Next(deferred.Void(), func(struct{}) *deferred.Value[any] {
				panic("not an error")
			}, nil)
		})
		panicErr, ok := err.(*deferred.PanicError)
		require.True(t, ok)
		assert.Equal(t, "not an error", panicErr.Value)

		// The writer is released, a later transaction still runs.
		_, err = p.RunTransaction(context.Background(), "after", ReadWrite, func(txn *Transaction) *deferred.Value[any] {
			return nil
		})
		assert.Nil(t, err)
	})
}

func TestListenerPanicKeepsCommit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persistence) {
		before := testutil.ToFloat64(commitListenerCounter)
		second := false
		_, err := p.RunTransaction(context.Background(), "write", ReadWrite, func(txn *Transaction) *deferred.Value[any] {
			txn.AddOnCommittedListener(func() { panic("listener") })
			txn.AddOnCommittedListener(func() { second = true })
			return asAny(txn.SetCF(engine_util.CfOverlay, testKey, []byte("v")))
		})
		require.Nil(t, err)
		assert.True(t, second)
		assert.Equal(t, []byte("v"), readKey(t, p))
		assert.Equal(t, before+2, testutil.ToFloat64(commitListenerCounter))
	})
}

func TestLateListenerIgnored(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persistence) {
		var handle *Transaction
		_, err := p.RunTransaction(context.Background(), "noop", ReadOnly, func(txn *Transaction) *deferred.Value[any] {
			handle = txn
			return deferred.Resolved[any](nil)
		})
		require.Nil(t, err)
		assert.Equal(t, Committed, handle.State())
		fired := false
		handle.AddOnCommittedListener(func() { fired = true })
		assert.False(t, fired)
	})
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persistence) {
		_, err := p.RunTransaction(context.Background(), "write", ReadOnly, func(txn *Transaction) *deferred.Value[any] {
			return asAny(txn.SetCF(engine_util.CfOverlay, testKey, []byte("v")))
		})
		assert.Equal(t, storage.ErrReadOnlyTxn, errors.Cause(err))
	})
}

func TestPrimaryPrecondition(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persistence) {
		before := testutil.ToFloat64(transactionCounter.WithLabelValues(ReadWritePrimary.String(), resultRejectedPrecondition))
		invoked := false
		_, err := p.RunTransaction(context.Background(), "primary only", ReadWritePrimary, func(txn *Transaction) *deferred.Value[any] {
			invoked = true
			return nil
		})
		require.NotNil(t, err)
		precondition, ok := err.(*ErrFailedPrecondition)
		require.True(t, ok)
		assert.Equal(t, "primary only", precondition.Action)
		assert.False(t, invoked)
		assert.Equal(t, before+1, testutil.ToFloat64(transactionCounter.WithLabelValues(ReadWritePrimary.String(), resultRejectedPrecondition)))

		_, err = p.RunTransaction(context.Background(), "any client", ReadWrite, func(txn *Transaction) *deferred.Value[any] {
			invoked = true
			return nil
		})
		assert.Nil(t, err)
		assert.True(t, invoked)
	}, WithPrimaryChecker(StaticPrimary(false)))
}

func TestPrimaryCheckerIsQueriedPerTransaction(t *testing.T) {
	primary := false
	forEachBackend(t, func(t *testing.T, p Persistence) {
		primary = false
		_, err := p.RunTransaction(context.Background(), "a", ReadWritePrimary, func(*Transaction) *deferred.Value[any] { return nil })
		assert.NotNil(t, err)
		primary = true
		_, err = p.RunTransaction(context.Background(), "b", ReadWritePrimary, func(*Transaction) *deferred.Value[any] { return nil })
		assert.Nil(t, err)
	}, WithPrimaryChecker(PrimaryFunc(func() bool { return primary })))
}

func TestNotStartedAndCanceled(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			p := b.open(t)
			assert.False(t, p.Started())
			_, err := p.RunTransaction(context.Background(), "early", ReadOnly, func(*Transaction) *deferred.Value[any] { return nil })
			_, ok := err.(*ErrFailedPrecondition)
			assert.True(t, ok)

			require.Nil(t, p.Start())
			require.Nil(t, p.Start())
			assert.True(t, p.Started())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err = p.RunTransaction(ctx, "canceled", ReadOnly, func(*Transaction) *deferred.Value[any] { return nil })
			assert.Equal(t, context.Canceled, err)

			require.Nil(t, p.Shutdown())
			require.Nil(t, p.Shutdown())
			assert.False(t, p.Started())
		})
	}
}

func TestTypedRunTransaction(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persistence) {
		n, err := RunTransaction(context.Background(), p, "count", ReadWrite, func(txn *Transaction) *deferred.Value[int] {
			return deferred.Then(txn.SetCF(engine_util.CfOverlay, testKey, []byte("v")), func(struct{}) (int, error) {
				return 42, nil
			})
		})
		require.Nil(t, err)
		assert.Equal(t, 42, n)

		n, err = RunTransaction(context.Background(), p, "nil chain", ReadOnly, func(txn *Transaction) *deferred.Value[int] {
			return nil
		})
		require.Nil(t, err)
		assert.Equal(t, 0, n)

		committed := testutil.ToFloat64(transactionCounter.WithLabelValues(ReadWrite.String(), resultCommitted))
		assert.True(t, committed >= 1)
	})
}

func TestNew(t *testing.T) {
	conf := config.NewTestConfig(t.TempDir())
	p, err := New(conf)
	require.Nil(t, err)
	_, ok := p.(*DurablePersistence)
	assert.True(t, ok)

	conf.Backend = config.BackendMemory
	conf.Primary = false
	p, err = New(conf)
	require.Nil(t, err)
	mem, ok := p.(*MemoryPersistence)
	require.True(t, ok)
	assert.False(t, mem.primary.IsPrimary())

	p, err = New(conf, WithPrimaryChecker(StaticPrimary(true)))
	require.Nil(t, err)
	assert.True(t, p.(*MemoryPersistence).primary.IsPrimary())

	conf.Backend = "sqlite"
	_, err = New(conf)
	assert.NotNil(t, err)

	assert.True(t, MemoryIsAvailable())
}
