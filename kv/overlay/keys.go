package overlay

import (
	"math"

	"github.com/pingcap-incubator/tinydoc/kv/model"
	"github.com/pingcap-incubator/tinydoc/kv/util/codec"
)

// Every key starts with the memcomparable encoding of the user id, so users
// never see each other's overlays. Document keys are encoded one segment at a
// time, which makes byte order equal to segment-wise path order.
//
//	overlays   user | doc segments                    -> overlay record
//	ov_coll    user | collection path | batch | doc   -> doc key
//	ov_group   user | group           | batch | doc   -> doc key
//	ov_batch   user | batch           | doc           -> doc key

func userPrefix(user string) []byte {
	return codec.EncodeBytes(nil, []byte(user))
}

func appendDocKey(b []byte, key model.DocumentKey) []byte {
	for _, seg := range key.Path().Segments() {
		b = codec.EncodeBytes(b, []byte(seg))
	}
	return b
}

func overlayKey(user string, key model.DocumentKey) []byte {
	return appendDocKey(userPrefix(user), key)
}

// collectionPrefix encodes the whole collection path as a single item so that
// a collection never prefix-matches its subcollections.
func collectionPrefix(user string, collection model.ResourcePath) []byte {
	return codec.EncodeBytes(userPrefix(user), []byte(collection.String()))
}

func collectionIndexKey(user string, batchID int64, key model.DocumentKey) []byte {
	b := codec.EncodeInt(collectionPrefix(user, key.CollectionPath()), batchID)
	return appendDocKey(b, key)
}

func groupPrefix(user string, group string) []byte {
	return codec.EncodeBytes(userPrefix(user), []byte(group))
}

func groupIndexKey(user string, batchID int64, key model.DocumentKey) []byte {
	b := codec.EncodeInt(groupPrefix(user, key.CollectionGroup()), batchID)
	return appendDocKey(b, key)
}

func batchIndexKey(user string, batchID int64, key model.DocumentKey) []byte {
	return appendDocKey(codec.EncodeInt(userPrefix(user), batchID), key)
}

// afterBatch is the seek key for the first entry under prefix whose batch id is
// greater than sinceBatchID. ok is false when no such batch id exists.
func afterBatch(prefix []byte, sinceBatchID int64) (seek []byte, ok bool) {
	if sinceBatchID == math.MaxInt64 {
		return nil, false
	}
	return codec.EncodeInt(append([]byte(nil), prefix...), sinceBatchID+1), true
}
