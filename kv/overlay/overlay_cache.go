// Package overlay stores the single pending local mutation of each document,
// indexed by document key, by collection, by collection group and by batch
// id. Every operation runs inside a persistence transaction, and all four
// indices are written or deleted together.
package overlay

import (
	"bytes"
	"sort"

	"github.com/goccy/go-json"
	"github.com/pingcap-incubator/tinydoc/kv/model"
	"github.com/pingcap-incubator/tinydoc/kv/persistence"
	"github.com/pingcap-incubator/tinydoc/kv/util/codec"
	"github.com/pingcap-incubator/tinydoc/kv/util/deferred"
	"github.com/pingcap-incubator/tinydoc/kv/util/engine_util"
	"github.com/pingcap/errors"
)

// DocumentOverlayCache is the overlay store of one user.
type DocumentOverlayCache interface {
	// GetOverlay returns the overlay of key, or nil when there is none.
	GetOverlay(txn *persistence.Transaction, key model.DocumentKey) *deferred.Value[*model.Overlay]
	// GetOverlays looks up several keys at once. Keys without an overlay are
	// left out of the result.
	GetOverlays(txn *persistence.Transaction, keys []model.DocumentKey) *deferred.Value[model.OverlayMap]
	// SaveOverlays stores one overlay per entry, tagged with largestBatchID.
	// An existing overlay for the same key is replaced.
	SaveOverlays(txn *persistence.Transaction, largestBatchID int64, mutations model.MutationMap) *deferred.Value[struct{}]
	// RemoveOverlaysForBatchID deletes every overlay whose batch id is at or
	// below batchID.
	RemoveOverlaysForBatchID(txn *persistence.Transaction, batchID int64) *deferred.Value[struct{}]
	// GetOverlaysForCollection returns the overlays of documents directly in
	// collection whose batch id is greater than sinceBatchID.
	GetOverlaysForCollection(txn *persistence.Transaction, collection model.ResourcePath, sinceBatchID int64) *deferred.Value[model.OverlayMap]
	// GetOverlaysForCollectionGroup returns overlays of documents in any
	// collection named group with a batch id greater than sinceBatchID,
	// ordered by batch id and then key. A page holds whole batches only, so
	// count is not a hard limit: the first batch is returned in full even
	// when it alone holds more than count overlays. Later batches are added
	// only while the page stays within count. Passing the last batch id of a
	// page as sinceBatchID resumes after it.
	GetOverlaysForCollectionGroup(txn *persistence.Transaction, group string, sinceBatchID int64, count int) *deferred.Value[[]*model.Overlay]
}

type overlayCache struct {
	user string
}

var _ DocumentOverlayCache = (*overlayCache)(nil)

// NewDocumentOverlayCache returns the overlay cache of user. The empty user is
// the unauthenticated user.
func NewDocumentOverlayCache(user string) DocumentOverlayCache {
	return &overlayCache{user: user}
}

func (c *overlayCache) GetOverlay(txn *persistence.Transaction, key model.DocumentKey) *deferred.Value[*model.Overlay] {
	return deferred.Then(txn.GetCF(engine_util.CfOverlay, overlayKey(c.user, key)), decodeOverlay)
}

func (c *overlayCache) GetOverlays(txn *persistence.Transaction, keys []model.DocumentKey) *deferred.Value[model.OverlayMap] {
	found := deferred.Map(keys, func(key model.DocumentKey) *deferred.Value[*model.Overlay] {
		return c.GetOverlay(txn, key)
	})
	return deferred.Then(found, func(overlays []*model.Overlay) (model.OverlayMap, error) {
		result := make(model.OverlayMap, len(keys))
		for i, overlay := range overlays {
			if overlay != nil {
				result[keys[i]] = overlay
			}
		}
		return result, nil
	})
}

func (c *overlayCache) SaveOverlays(txn *persistence.Transaction, largestBatchID int64, mutations model.MutationMap) *deferred.Value[struct{}] {
	keys := make([]model.DocumentKey, 0, len(mutations))
	for key := range mutations {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })

	return deferred.ForEach(keys, func(key model.DocumentKey) *deferred.Value[struct{}] {
		mutation := mutations[key]
		if mutation.Key.IsZero() {
			mutation.Key = key
		} else if mutation.Key != key {
			return deferred.Rejected[struct{}](errors.Errorf("mutation for %s saved under key %s", mutation.Key, key))
		}
		return c.saveOverlay(txn, &model.Overlay{LargestBatchID: largestBatchID, Mutation: mutation})
	})
}

func (c *overlayCache) saveOverlay(txn *persistence.Transaction, overlay *model.Overlay) *deferred.Value[struct{}] {
	key := overlay.Key()
	// The index keys embed the batch id, so the entries of a replaced overlay
	// have to go first.
	removeOld := deferred.Next(c.GetOverlay(txn, key), func(old *model.Overlay) *deferred.Value[struct{}] {
		if old == nil {
			return deferred.Void()
		}
		return c.deleteIndexEntries(txn, old.LargestBatchID, key)
	}, nil)

	return deferred.Next(removeOld, func(struct{}) *deferred.Value[struct{}] {
		// No HTML escaping: the mutation value is raw JSON and has to come back
		// byte for byte.
		record, err := json.MarshalNoEscape(overlay)
		if err != nil {
			return deferred.Rejected[struct{}](errors.Trace(err))
		}
		keyValue := []byte(key.String())
		return deferred.Waterfall(
			func() *deferred.Value[struct{}] {
				return txn.SetCF(engine_util.CfOverlay, overlayKey(c.user, key), record)
			},
			func() *deferred.Value[struct{}] {
				return txn.SetCF(engine_util.CfOverlayCollection, collectionIndexKey(c.user, overlay.LargestBatchID, key), keyValue)
			},
			func() *deferred.Value[struct{}] {
				return txn.SetCF(engine_util.CfOverlayGroup, groupIndexKey(c.user, overlay.LargestBatchID, key), keyValue)
			},
			func() *deferred.Value[struct{}] {
				return txn.SetCF(engine_util.CfOverlayBatch, batchIndexKey(c.user, overlay.LargestBatchID, key), keyValue)
			},
		)
	}, nil)
}

func (c *overlayCache) deleteIndexEntries(txn *persistence.Transaction, batchID int64, key model.DocumentKey) *deferred.Value[struct{}] {
	return deferred.Waterfall(
		func() *deferred.Value[struct{}] {
			return txn.DeleteCF(engine_util.CfOverlayCollection, collectionIndexKey(c.user, batchID, key))
		},
		func() *deferred.Value[struct{}] {
			return txn.DeleteCF(engine_util.CfOverlayGroup, groupIndexKey(c.user, batchID, key))
		},
		func() *deferred.Value[struct{}] {
			return txn.DeleteCF(engine_util.CfOverlayBatch, batchIndexKey(c.user, batchID, key))
		},
	)
}

type indexEntry struct {
	batchID int64
	key     model.DocumentKey
}

func (c *overlayCache) RemoveOverlaysForBatchID(txn *persistence.Transaction, batchID int64) *deferred.Value[struct{}] {
	prefix := userPrefix(c.user)
	var entries []indexEntry
	err := scanIndex(txn, engine_util.CfOverlayBatch, prefix, prefix, func(entry indexEntry) bool {
		if entry.batchID > batchID {
			return false
		}
		entries = append(entries, entry)
		return true
	})
	if err != nil {
		return deferred.Rejected[struct{}](err)
	}

	return deferred.ForEach(entries, func(entry indexEntry) *deferred.Value[struct{}] {
		return deferred.Next(txn.DeleteCF(engine_util.CfOverlay, overlayKey(c.user, entry.key)),
			func(struct{}) *deferred.Value[struct{}] {
				return c.deleteIndexEntries(txn, entry.batchID, entry.key)
			}, nil)
	})
}

func (c *overlayCache) GetOverlaysForCollection(txn *persistence.Transaction, collection model.ResourcePath, sinceBatchID int64) *deferred.Value[model.OverlayMap] {
	prefix := collectionPrefix(c.user, collection)
	seek, ok := afterBatch(prefix, sinceBatchID)
	if !ok {
		return deferred.Resolved(model.OverlayMap{})
	}
	var keys []model.DocumentKey
	err := scanIndex(txn, engine_util.CfOverlayCollection, prefix, seek, func(entry indexEntry) bool {
		keys = append(keys, entry.key)
		return true
	})
	if err != nil {
		return deferred.Rejected[model.OverlayMap](err)
	}
	return c.GetOverlays(txn, keys)
}

func (c *overlayCache) GetOverlaysForCollectionGroup(txn *persistence.Transaction, group string, sinceBatchID int64, count int) *deferred.Value[[]*model.Overlay] {
	prefix := groupPrefix(c.user, group)
	seek, ok := afterBatch(prefix, sinceBatchID)
	if !ok || count <= 0 {
		return deferred.Resolved([]*model.Overlay{})
	}

	var page, batch []model.DocumentKey
	currentBatch := sinceBatchID
	// flush moves the finished batch onto the page if it fits, and reports
	// whether the scan should go on.
	flush := func() bool {
		if len(page) > 0 && len(page)+len(batch) > count {
			return false
		}
		page = append(page, batch...)
		batch = nil
		return len(page) < count
	}
	full := false
	err := scanIndex(txn, engine_util.CfOverlayGroup, prefix, seek, func(entry indexEntry) bool {
		if entry.batchID != currentBatch && len(batch) > 0 {
			if !flush() {
				full = true
				return false
			}
		}
		currentBatch = entry.batchID
		batch = append(batch, entry.key)
		return true
	})
	if err != nil {
		return deferred.Rejected[[]*model.Overlay](err)
	}
	if !full && len(batch) > 0 {
		flush()
	}

	return deferred.Map(page, func(key model.DocumentKey) *deferred.Value[*model.Overlay] {
		return deferred.Then(c.GetOverlay(txn, key), func(overlay *model.Overlay) (*model.Overlay, error) {
			if overlay == nil {
				return nil, errors.Errorf("collection group index points at missing overlay %s", key)
			}
			return overlay, nil
		})
	})
}

// scanIndex walks the index entries of cf under prefix, starting at seek,
// until visit returns false. The iterator is closed before scanIndex returns
// so that the caller may write to the transaction afterwards.
func scanIndex(txn *persistence.Transaction, cf string, prefix, seek []byte, visit func(entry indexEntry) bool) error {
	it := txn.IterCF(cf)
	defer it.Close()
	for it.Seek(seek); it.Valid(); it.Next() {
		item := it.Item()
		k := item.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		_, batchID, err := codec.DecodeInt(k[len(prefix):])
		if err != nil {
			return errors.Annotatef(err, "decode index key %x in %s", k, cf)
		}
		val, err := item.Value()
		if err != nil {
			return errors.Trace(err)
		}
		key, err := model.ParseDocumentKey(string(val))
		if err != nil {
			return errors.Annotatef(err, "index entry %x in %s", k, cf)
		}
		if !visit(indexEntry{batchID: batchID, key: key}) {
			break
		}
	}
	return nil
}

func decodeOverlay(record []byte) (*model.Overlay, error) {
	if record == nil {
		return nil, nil
	}
	overlay := new(model.Overlay)
	if err := json.Unmarshal(record, overlay); err != nil {
		return nil, errors.Annotate(err, "decode overlay record")
	}
	return overlay, nil
}
