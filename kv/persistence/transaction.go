package persistence

import (
	"sync"

	"github.com/pingcap-incubator/tinydoc/kv/storage"
	"github.com/pingcap-incubator/tinydoc/kv/util/deferred"
	"github.com/pingcap-incubator/tinydoc/kv/util/engine_util"
	"github.com/pingcap-incubator/tinydoc/log"
)

// TxnState is where a transaction is in its lifecycle.
type TxnState int

const (
	Pending TxnState = iota
	Committed
	Aborted
)

func (s TxnState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Transaction is the handle passed to the work of RunTransaction. Reads and
// writes go straight to the underlying storage transaction. The handle must
// not be used after the work's chain has settled.
type Transaction struct {
	id     uint64
	action string
	mode   Mode
	txn    storage.Txn

	mu        sync.Mutex
	state     TxnState
	listeners []func()
}

func newTransaction(id uint64, action string, mode Mode, txn storage.Txn) *Transaction {
	return &Transaction{id: id, action: action, mode: mode, txn: txn}
}

// ID is unique among the transactions of one Persistence, counting from 1.
func (t *Transaction) ID() uint64 {
	return t.id
}

// Action is the label the transaction was started with.
func (t *Transaction) Action() string {
	return t.action
}

// Mode is the mode the transaction was started with.
func (t *Transaction) Mode() Mode {
	return t.mode
}

// State is Pending until the transaction commits or aborts.
func (t *Transaction) State() TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// AddOnCommittedListener registers fn to run once the transaction has
// committed. Listeners run in registration order and never run if the
// transaction aborts. Registering on a finished transaction does nothing.
func (t *Transaction) AddOnCommittedListener(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Pending {
		log.Warnf("txn %d (%s): listener added after the transaction %s, ignored", t.id, t.action, t.state)
		return
	}
	t.listeners = append(t.listeners, fn)
}

func (t *Transaction) GetCF(cf string, key []byte) *deferred.Value[[]byte] {
	val, err := t.txn.GetCF(cf, key)
	if err != nil {
		return deferred.Rejected[[]byte](err)
	}
	return deferred.Resolved(val)
}

func (t *Transaction) SetCF(cf string, key, val []byte) *deferred.Value[struct{}] {
	if err := t.txn.SetCF(cf, key, val); err != nil {
		return deferred.Rejected[struct{}](err)
	}
	return deferred.Void()
}

func (t *Transaction) DeleteCF(cf string, key []byte) *deferred.Value[struct{}] {
	if err := t.txn.DeleteCF(cf, key); err != nil {
		return deferred.Rejected[struct{}](err)
	}
	return deferred.Void()
}

// IterCF opens an iterator over one column family. Close it before the next
// write or the next IterCF.
func (t *Transaction) IterCF(cf string) engine_util.DBIterator {
	return t.txn.IterCF(cf)
}

// finish moves the transaction out of Pending and hands back the listeners to
// run, which is none unless it committed.
func (t *Transaction) finish(state TxnState) []func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Pending {
		return nil
	}
	t.state = state
	listeners := t.listeners
	t.listeners = nil
	if state != Committed {
		return nil
	}
	return listeners
}

// runListeners invokes committed listeners. A panicking listener is logged and
// the rest still run: the data is already committed.
func (t *Transaction) runListeners(listeners []func()) {
	for i, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("txn %d (%s): commit listener %d panicked: %v", t.id, t.action, i, r)
				}
			}()
			fn()
		}()
		commitListenerCounter.Inc()
	}
}
