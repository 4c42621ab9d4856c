package persistence

import (
	"github.com/pingcap-incubator/tinydoc/kv/config"
	"github.com/pingcap-incubator/tinydoc/kv/storage/standalone_storage"
	"github.com/pingcap-incubator/tinydoc/log"
)

// DurablePersistence stores data in a badger database under conf.DBPath.
// Transactions map onto badger transactions, so concurrent read-write
// transactions may abort with a retryable ErrTransactionAborted.
type DurablePersistence struct {
	runner
	conf *config.Config
	db   *standalone_storage.StandAloneStorage
}

var _ Persistence = (*DurablePersistence)(nil)

// DurableIsAvailable probes whether the durable backend could start with conf.
func DurableIsAvailable(conf *config.Config) bool {
	return standalone_storage.IsAvailable(conf)
}

// NewDurablePersistence returns a durable persistence whose primary role
// follows conf.Primary unless a checker is injected.
func NewDurablePersistence(conf *config.Config, opts ...Option) *DurablePersistence {
	o := buildOptions(conf.Primary, opts)
	db := standalone_storage.NewStandAloneStorage(conf)
	return &DurablePersistence{
		runner: runner{name: "durable", storage: db, primary: o.primary},
		conf:   conf,
		db:     db,
	}
}

// Start opens the database. It fails with ErrBackendUnavailable when the
// backend cannot run at conf.DBPath.
func (p *DurablePersistence) Start() error {
	if p.started.Load() {
		return nil
	}
	if err := p.db.Start(); err != nil {
		return err
	}
	log.Infof("durable persistence started at %s", p.conf.DBPath)
	p.started.Store(true)
	return nil
}

func (p *DurablePersistence) Shutdown() error {
	if !p.started.Swap(false) {
		return nil
	}
	log.Infof("durable persistence at %s shutting down", p.conf.DBPath)
	return p.db.Stop()
}
