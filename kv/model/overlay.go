package model

import "sort"

// BatchIDUnknown sorts below every real batch id. Passing it as a cursor
// selects all overlays.
const BatchIDUnknown int64 = -1

// Overlay is the single collapsed pending mutation for one document, tagged
// with the id of the most recent batch that produced it.
type Overlay struct {
	LargestBatchID int64    `json:"largestBatchId"`
	Mutation       Mutation `json:"mutation"`
}

func (o *Overlay) Key() DocumentKey {
	return o.Mutation.Key
}

// OverlayMap maps document keys to their overlays.
type OverlayMap map[DocumentKey]*Overlay

// SortedKeys returns the keys in document key order.
func (m OverlayMap) SortedKeys() []DocumentKey {
	keys := make([]DocumentKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}

// MutationMap is the input of a save: the mutation to store per document.
type MutationMap map[DocumentKey]Mutation
