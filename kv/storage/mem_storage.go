package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/pingcap-incubator/tinydoc/kv/util/engine_util"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
)

const memTreeDegree = 16

// MemStorage is a Storage backed by one ordered tree per column family. Data does not survive the process.
//
// Every transaction works on copy-on-write clones of the trees taken when it begins, which gives it a stable
// snapshot. Read-write transactions are serialized by a writer lock held from Begin until Commit or Discard, so
// committing simply installs the cloned trees.
type MemStorage struct {
	writer  sync.Mutex
	mu      sync.Mutex // guards cfs
	cfs     map[string]*btree.BTreeG[memItem]
	started atomic.Bool
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		cfs: make(map[string]*btree.BTreeG[memItem]),
	}
}

// MemIsAvailable reports whether the memory backend can run. It always can.
func MemIsAvailable() bool {
	return true
}

func (is *MemStorage) Start() error {
	is.started.Store(true)
	return nil
}

func (is *MemStorage) Stop() error {
	is.started.Store(false)
	return nil
}

func (is *MemStorage) Begin(update bool) (Txn, error) {
	if !is.started.Load() {
		return nil, ErrNotStarted
	}
	if update {
		is.writer.Lock()
	}
	return &memTxn{inner: is, update: update, snap: is.snapshot()}, nil
}

func (is *MemStorage) snapshot() map[string]*btree.BTreeG[memItem] {
	is.mu.Lock()
	defer is.mu.Unlock()
	snap := make(map[string]*btree.BTreeG[memItem], len(is.cfs))
	for cf, tree := range is.cfs {
		snap[cf] = tree.Clone()
	}
	return snap
}

func (is *MemStorage) install(snap map[string]*btree.BTreeG[memItem]) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.cfs = snap
}

// Get reads a committed value outside of any transaction. Intended for tests.
func (is *MemStorage) Get(cf string, key []byte) []byte {
	is.mu.Lock()
	defer is.mu.Unlock()
	tree, ok := is.cfs[cf]
	if !ok {
		return nil
	}
	item, ok := tree.Get(memItem{key: key})
	if !ok {
		return nil
	}
	return item.value
}

// Set writes a value outside of any transaction. Intended for tests.
func (is *MemStorage) Set(cf string, key []byte, value []byte) {
	is.writer.Lock()
	defer is.writer.Unlock()
	is.mu.Lock()
	defer is.mu.Unlock()
	treeFor(is.cfs, cf).ReplaceOrInsert(memItem{key: key, value: value})
}

// Len returns the number of committed keys in cf.
func (is *MemStorage) Len(cf string) int {
	is.mu.Lock()
	defer is.mu.Unlock()
	tree, ok := is.cfs[cf]
	if !ok {
		return 0
	}
	return tree.Len()
}

func treeFor(cfs map[string]*btree.BTreeG[memItem], cf string) *btree.BTreeG[memItem] {
	tree, ok := cfs[cf]
	if !ok {
		tree = btree.NewG[memItem](memTreeDegree, memItemLess)
		cfs[cf] = tree
	}
	return tree
}

// memTxn is a Txn over a MemStorage snapshot.
type memTxn struct {
	inner  *MemStorage
	update bool
	snap   map[string]*btree.BTreeG[memItem]
	closed bool
}

func (txn *memTxn) GetCF(cf string, key []byte) ([]byte, error) {
	if txn.closed {
		return nil, ErrTxnClosed
	}
	tree, ok := txn.snap[cf]
	if !ok {
		return nil, nil
	}
	item, ok := tree.Get(memItem{key: key})
	if !ok {
		return nil, nil
	}
	return item.value, nil
}

func (txn *memTxn) SetCF(cf string, key, val []byte) error {
	if err := txn.checkWritable(); err != nil {
		return err
	}
	item := memItem{
		key:   append(make([]byte, 0, len(key)), key...),
		value: append(make([]byte, 0, len(val)), val...),
	}
	treeFor(txn.snap, cf).ReplaceOrInsert(item)
	return nil
}

func (txn *memTxn) DeleteCF(cf string, key []byte) error {
	if err := txn.checkWritable(); err != nil {
		return err
	}
	if tree, ok := txn.snap[cf]; ok {
		tree.Delete(memItem{key: key})
	}
	return nil
}

func (txn *memTxn) checkWritable() error {
	if txn.closed {
		return ErrTxnClosed
	}
	if !txn.update {
		return errors.WithStack(ErrReadOnlyTxn)
	}
	return nil
}

func (txn *memTxn) IterCF(cf string) engine_util.DBIterator {
	tree, ok := txn.snap[cf]
	if !ok {
		tree = btree.NewG[memItem](memTreeDegree, memItemLess)
	}
	it := &memIter{data: tree}
	if min, ok := tree.Min(); ok {
		it.item = min
	}
	return it
}

func (txn *memTxn) Commit() error {
	if txn.closed {
		return ErrTxnClosed
	}
	txn.closed = true
	if txn.update {
		txn.inner.install(txn.snap)
		txn.inner.writer.Unlock()
	}
	return nil
}

func (txn *memTxn) Discard() {
	if txn.closed {
		return
	}
	txn.closed = true
	if txn.update {
		txn.inner.writer.Unlock()
	}
}

type memIter struct {
	data *btree.BTreeG[memItem]
	item memItem
}

func (it *memIter) Item() engine_util.DBItem {
	return it.item
}
func (it *memIter) Valid() bool {
	return it.item.key != nil
}
func (it *memIter) Next() {
	oldItem := it.item
	it.item = memItem{}
	it.data.AscendGreaterOrEqual(oldItem, func(item memItem) bool {
		// Skip it.item itself, unless it has been deleted meanwhile.
		if bytes.Equal(item.key, oldItem.key) {
			return true
		}
		it.item = item
		return false
	})
}
func (it *memIter) Seek(key []byte) {
	it.item = memItem{}
	it.data.AscendGreaterOrEqual(memItem{key: key}, func(item memItem) bool {
		it.item = item
		return false
	})
}

func (it *memIter) Close() {}

type memItem struct {
	key   []byte
	value []byte
}

func (it memItem) Key() []byte {
	return it.key
}
func (it memItem) KeyCopy(dst []byte) []byte {
	return append(dst[:0], it.key...)
}
func (it memItem) Value() ([]byte, error) {
	return it.value, nil
}
func (it memItem) ValueSize() int {
	return len(it.value)
}
func (it memItem) ValueCopy(dst []byte) ([]byte, error) {
	return append(dst[:0], it.value...), nil
}

func memItemLess(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}
