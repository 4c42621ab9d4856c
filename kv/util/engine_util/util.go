package engine_util

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/pingcap/errors"
)

const (
	// CfOverlay maps a document key to its overlay record.
	CfOverlay string = "overlays"
	// CfOverlayCollection indexes overlays by parent collection path, then batch id.
	CfOverlayCollection string = "ov_coll"
	// CfOverlayGroup indexes overlays by collection group, then batch id.
	CfOverlayGroup string = "ov_group"
	// CfOverlayBatch indexes overlays by batch id.
	CfOverlayBatch string = "ov_batch"
)

// No CF name followed by "_" may be a prefix of another CF's keys.
var CFs [4]string = [4]string{CfOverlay, CfOverlayCollection, CfOverlayGroup, CfOverlayBatch}

func KeyWithCF(cf string, key []byte) []byte {
	return append([]byte(cf+"_"), key...)
}

// GetCFFromTxn returns a copy of the value at key, or badger.ErrKeyNotFound.
func GetCFFromTxn(txn *badger.Txn, cf string, key []byte) (val []byte, err error) {
	item, err := txn.Get(KeyWithCF(cf, key))
	if err != nil {
		return nil, err
	}
	val, err = item.ValueCopy(val)
	return
}

func PutCFToTxn(txn *badger.Txn, cf string, key []byte, val []byte) error {
	return errors.WithStack(txn.Set(KeyWithCF(cf, key), val))
}

func DeleteCFFromTxn(txn *badger.Txn, cf string, key []byte) error {
	return errors.WithStack(txn.Delete(KeyWithCF(cf, key)))
}
