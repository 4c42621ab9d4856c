package engine_util

/*
An engine is a low-level system for storing key/value pairs locally. This package contains code for interacting with
badger, the engine behind the durable backend.

CF means 'column family'. A good description of column families is given in https://github.com/facebook/rocksdb/wiki/Column-Families
(specifically for RocksDB, but the general concepts are universal). In short, a column family is a key namespace.
Badger has no native column families, so a CF is a key prefix. Writes can be made atomic across column families since
they all live in the same badger transaction.

engine_util includes the following files:

* engines: opening a badger DB from the config.
* util: CF-prefixed reads and writes inside a badger transaction.
* cf_iterator: iteration over a single column family, plus the iterator interfaces shared with the memory backend.
*/
