package engine_util

import (
	"bytes"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/pingcap-incubator/tinydoc/kv/config"
	"github.com/stretchr/testify/require"
)

func TestEngineUtil(t *testing.T) {
	conf := config.NewTestConfig(t.TempDir())
	db, err := CreateDB(conf)
	require.Nil(t, err)
	defer DestroyDB(db, conf.DBPath)

	err = db.Update(func(txn *badger.Txn) error {
		for _, kv := range []struct{ cf, k, v string }{
			{CfOverlay, "a", "a1"},
			{CfOverlay, "b", "b1"},
			{CfOverlay, "c", "c1"},
			{CfOverlay, "d", "d1"},
			{CfOverlayGroup, "a", "a2"},
			{CfOverlayGroup, "b", "b2"},
			{CfOverlayGroup, "d", "d2"},
			{CfOverlayBatch, "a", "a3"},
			{CfOverlayBatch, "c", "c3"},
			{CfOverlay, "e", "e1"},
		} {
			if err := PutCFToTxn(txn, kv.cf, []byte(kv.k), []byte(kv.v)); err != nil {
				return err
			}
		}
		return DeleteCFFromTxn(txn, CfOverlay, []byte("e"))
	})
	require.Nil(t, err)

	err = db.View(func(txn *badger.Txn) error {
		_, err := GetCFFromTxn(txn, CfOverlay, []byte("e"))
		return err
	})
	require.Equal(t, err, badger.ErrKeyNotFound)

	err = db.Update(func(txn *badger.Txn) error {
		return PutCFToTxn(txn, CfOverlay, []byte("e"), []byte("e2"))
	})
	require.Nil(t, err)
	var val []byte
	err = db.View(func(txn *badger.Txn) error {
		val, err = GetCFFromTxn(txn, CfOverlay, []byte("e"))
		return err
	})
	require.Nil(t, err)
	require.Equal(t, val, []byte("e2"))
	// The same key under another CF stays absent.
	err = db.View(func(txn *badger.Txn) error {
		_, err := GetCFFromTxn(txn, CfOverlayGroup, []byte("e"))
		return err
	})
	require.Equal(t, err, badger.ErrKeyNotFound)
	err = db.Update(func(txn *badger.Txn) error {
		return DeleteCFFromTxn(txn, CfOverlay, []byte("e"))
	})
	require.Nil(t, err)
	err = db.View(func(txn *badger.Txn) error {
		_, err := GetCFFromTxn(txn, CfOverlay, []byte("e"))
		return err
	})
	require.Equal(t, err, badger.ErrKeyNotFound)

	txn := db.NewTransaction(false)
	defer txn.Discard()
	defaultIter := NewCFIterator(CfOverlay, txn)
	defaultIter.Seek([]byte("a"))
	for _, want := range []string{"a", "b", "c", "d"} {
		require.True(t, defaultIter.Valid())
		item := defaultIter.Item()
		require.True(t, bytes.Equal(item.Key(), []byte(want)))
		val, _ = item.Value()
		require.True(t, bytes.Equal(val, []byte(want+"1")))
		defaultIter.Next()
	}
	require.False(t, defaultIter.Valid())
	defaultIter.Close()

	groupIter := NewCFIterator(CfOverlayGroup, txn)
	groupIter.Seek([]byte("b"))
	item := groupIter.Item()
	require.True(t, bytes.Equal(item.Key(), []byte("b")))
	val, _ = item.Value()
	require.True(t, bytes.Equal(val, []byte("b2")))
	groupIter.Next()
	item = groupIter.Item()
	require.True(t, bytes.Equal(item.Key(), []byte("d")))
	groupIter.Next()
	require.False(t, groupIter.Valid())
	groupIter.Close()

	batchIter := NewCFIterator(CfOverlayBatch, txn)
	batchIter.Seek([]byte("b"))
	item = batchIter.Item()
	require.True(t, bytes.Equal(item.Key(), []byte("c")))
	batchIter.Next()
	require.False(t, batchIter.Valid())
	batchIter.Close()
}

func TestCFKeyspacesAreDisjoint(t *testing.T) {
	for _, a := range CFs {
		for _, b := range CFs {
			if a != b {
				require.False(t, bytes.HasPrefix(KeyWithCF(b, []byte("k")), KeyWithCF(a, nil)), "%s in %s", b, a)
			}
		}
	}
}
