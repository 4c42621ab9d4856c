package persistence

import "github.com/pingcap-incubator/tinydoc/kv/storage"

// MemoryPersistence keeps everything in process memory. Nothing survives a
// restart. Read-write transactions run one at a time.
type MemoryPersistence struct {
	runner
	mem *storage.MemStorage
}

var _ Persistence = (*MemoryPersistence)(nil)

// MemoryIsAvailable reports whether the memory backend can run. It always can.
func MemoryIsAvailable() bool {
	return storage.MemIsAvailable()
}

// NewMemoryPersistence returns a memory persistence that holds the primary role
// unless a checker is injected.
func NewMemoryPersistence(opts ...Option) *MemoryPersistence {
	o := buildOptions(true, opts)
	mem := storage.NewMemStorage()
	return &MemoryPersistence{
		runner: runner{name: "memory", storage: mem, primary: o.primary},
		mem:    mem,
	}
}

func (p *MemoryPersistence) Start() error {
	if p.started.Load() {
		return nil
	}
	if err := p.mem.Start(); err != nil {
		return err
	}
	p.started.Store(true)
	return nil
}

func (p *MemoryPersistence) Shutdown() error {
	if !p.started.Swap(false) {
		return nil
	}
	return p.mem.Stop()
}
