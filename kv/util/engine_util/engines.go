package engine_util

import (
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/pingcap-incubator/tinydoc/kv/config"
	"github.com/pingcap-incubator/tinydoc/log"
	"github.com/pingcap/errors"
)

// BadgerOptions builds badger options from conf. Badger logs through the
// process logger.
func BadgerOptions(conf *config.Config) (badger.Options, error) {
	opts := badger.DefaultOptions(conf.DBPath).
		WithSyncWrites(conf.SyncWrites).
		WithLogger(log.GlobalLogger())
	if conf.NumCompactors > 0 {
		opts = opts.WithNumCompactors(conf.NumCompactors)
	}
	size, err := conf.ValueLogFileSizeBytes()
	if err != nil {
		return opts, err
	}
	opts = opts.WithValueLogFileSize(size)
	return opts, nil
}

// CreateDB creates a new Badger DB on disk at conf.DBPath.
func CreateDB(conf *config.Config) (*badger.DB, error) {
	opts, err := BadgerOptions(conf)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
		return nil, errors.WithStack(err)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return db, nil
}

// DestroyDB closes db and removes its directory.
func DestroyDB(db *badger.DB, path string) error {
	if err := db.Close(); err != nil {
		return err
	}
	return errors.WithStack(os.RemoveAll(path))
}
