package tinydoc

/*
TinyDoc is the local persistence layer of an offline-first document cache. It runs atomic transactions against a local
store and keeps, for every document, the single pending local mutation (the overlay) that has not yet been acknowledged
upstream.

The `tinydoc` module is organized into the following packages:

* `kv/util/deferred`: a chainable eventual value. Transaction bodies are written as chains of these so that every step
  is issued while the storage transaction is still open.
* `kv/storage`: the storage abstraction, a set of column families with atomic transactions, plus an in-memory
  implementation. `kv/storage/standalone_storage` is the durable implementation on badger.
* `kv/persistence`: runs transactions. It checks the primary role, commits or aborts, and fires commit listeners. It
  offers a memory and a durable variant behind one interface.
* `kv/model`: document keys, mutations and overlays.
* `kv/overlay`: the overlay cache, indexed by document, by collection, by collection group and by batch id.
* `kv/overlayctl`: a command line tool for inspecting a durable store.
* `kv/config`, `log` and `kv/util/...`: configuration, logging and helpers.
*/
