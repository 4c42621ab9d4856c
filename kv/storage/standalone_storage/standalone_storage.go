package standalone_storage

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pingcap-incubator/tinydoc/kv/config"
	"github.com/pingcap-incubator/tinydoc/kv/storage"
	"github.com/pingcap-incubator/tinydoc/kv/util"
	"github.com/pingcap-incubator/tinydoc/kv/util/engine_util"
	"github.com/pingcap-incubator/tinydoc/log"
	"github.com/pingcap/errors"
	"github.com/shirou/gopsutil/v3/disk"
)

const backendName = "durable"

// StandAloneStorage is an implementation of `Storage` for a single local badger database. Transactions map directly
// onto badger transactions, so commit outcomes (including conflict aborts) come from badger.
type StandAloneStorage struct {
	conf *config.Config

	mu sync.Mutex
	db *badger.DB
}

func NewStandAloneStorage(conf *config.Config) *StandAloneStorage {
	return &StandAloneStorage{conf: conf}
}

// Probe checks that a durable store can run at conf.DBPath: the platform must be 64-bit, the directory writable and
// the disk must have at least conf.MinFreeDisk free. It returns nil when available.
func Probe(conf *config.Config) error {
	unavailable := func(format string, args ...interface{}) error {
		return &storage.ErrBackendUnavailable{Backend: backendName, Reason: fmt.Sprintf(format, args...)}
	}
	if strconv.IntSize != 64 {
		return unavailable("badger requires a 64-bit platform")
	}
	if conf.DBPath == "" {
		return unavailable("no db path configured")
	}
	if err := os.MkdirAll(conf.DBPath, os.ModePerm); err != nil {
		return unavailable("create %s: %v", conf.DBPath, err)
	}
	f, err := os.CreateTemp(conf.DBPath, ".probe-*")
	if err != nil {
		return unavailable("%s is not writable: %v", conf.DBPath, err)
	}
	f.Close()
	if _, err := util.DeleteFileIfExists(f.Name()); err != nil {
		return unavailable("remove probe file: %v", err)
	}

	minFree, err := conf.MinFreeDiskBytes()
	if err != nil {
		return unavailable("%v", err)
	}
	if minFree > 0 {
		stat, err := disk.Usage(conf.DBPath)
		if err != nil {
			return unavailable("stat disk of %s: %v", conf.DBPath, err)
		}
		if stat.Free < uint64(minFree) {
			return unavailable("%d bytes free on %s, need %d", stat.Free, conf.DBPath, minFree)
		}
	}
	return nil
}

// IsAvailable is the boolean form of Probe.
func IsAvailable(conf *config.Config) bool {
	return Probe(conf) == nil
}

func (s *StandAloneStorage) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	if err := Probe(s.conf); err != nil {
		return err
	}
	db, err := engine_util.CreateDB(s.conf)
	if err != nil {
		return &storage.ErrBackendUnavailable{Backend: backendName, Reason: err.Error()}
	}
	s.db = db
	log.Infof("durable storage opened at %s", s.conf.DBPath)
	return nil
}

func (s *StandAloneStorage) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return errors.Trace(err)
}

func (s *StandAloneStorage) Begin(update bool) (storage.Txn, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, storage.ErrNotStarted
	}
	return &badgerTxn{txn: db.NewTransaction(update), update: update}, nil
}

type badgerTxn struct {
	txn    *badger.Txn
	update bool
	closed bool
}

func (t *badgerTxn) GetCF(cf string, key []byte) ([]byte, error) {
	if t.closed {
		return nil, storage.ErrTxnClosed
	}
	val, err := engine_util.GetCFFromTxn(t.txn, cf, key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return val, nil
}

func (t *badgerTxn) SetCF(cf string, key, val []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	return t.writeErr(engine_util.PutCFToTxn(t.txn, cf, key, val))
}

func (t *badgerTxn) DeleteCF(cf string, key []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	return t.writeErr(engine_util.DeleteCFFromTxn(t.txn, cf, key))
}

func (t *badgerTxn) checkWritable() error {
	if t.closed {
		return storage.ErrTxnClosed
	}
	if !t.update {
		return errors.WithStack(storage.ErrReadOnlyTxn)
	}
	return nil
}

// writeErr turns engine-imposed limits into aborts.
func (t *badgerTxn) writeErr(err error) error {
	if errors.Cause(err) == badger.ErrTxnTooBig {
		return &storage.ErrTxnAborted{Cause: errors.Cause(err)}
	}
	return err
}

func (t *badgerTxn) IterCF(cf string) engine_util.DBIterator {
	return engine_util.NewCFIterator(cf, t.txn)
}

func (t *badgerTxn) Commit() error {
	if t.closed {
		return storage.ErrTxnClosed
	}
	t.closed = true
	if !t.update {
		t.txn.Discard()
		return nil
	}
	err := t.txn.Commit()
	switch {
	case err == nil:
		return nil
	case err == badger.ErrConflict:
		return &storage.ErrTxnAborted{Cause: err, Retryable: true}
	default:
		return &storage.ErrTxnAborted{Cause: err}
	}
}

func (t *badgerTxn) Discard() {
	if t.closed {
		return
	}
	t.closed = true
	t.txn.Discard()
}
