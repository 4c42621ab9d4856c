package model

import (
	"strings"

	"github.com/pingcap/errors"
)

// DocumentKey identifies a document by its full path, which always has an
// even number of segments. The zero value is not a valid key.
//
// The canonical path string is kept instead of the segments so that keys are
// comparable and usable as map keys.
type DocumentKey struct {
	path string
}

func NewDocumentKey(path ResourcePath) (DocumentKey, error) {
	if path.IsEmpty() || path.Len()%2 != 0 {
		return DocumentKey{}, errors.Errorf("invalid document key %q: path must have an even number of segments", path)
	}
	// Path splits the string form again, so a segment holding a slash would
	// change the collection the key belongs to.
	if err := validateSegments(path.segments); err != nil {
		return DocumentKey{}, errors.Annotatef(err, "invalid document key %q", path)
	}
	return DocumentKey{path: path.String()}, nil
}

func ParseDocumentKey(s string) (DocumentKey, error) {
	path, err := ParseResourcePath(s)
	if err != nil {
		return DocumentKey{}, err
	}
	return NewDocumentKey(path)
}

// MustDocumentKey is ParseDocumentKey for keys known to be valid. It panics otherwise.
func MustDocumentKey(s string) DocumentKey {
	key, err := ParseDocumentKey(s)
	if err != nil {
		panic(err)
	}
	return key
}

func (k DocumentKey) IsZero() bool {
	return k.path == ""
}

func (k DocumentKey) Path() ResourcePath {
	if k.path == "" {
		return ResourcePath{}
	}
	return ResourcePath{segments: strings.Split(k.path, pathSeparator)}
}

// CollectionPath is the path of the collection directly containing the document.
func (k DocumentKey) CollectionPath() ResourcePath {
	return k.Path().PopLast()
}

// CollectionGroup is the id of the containing collection, shared by every
// collection of that name at any depth.
func (k DocumentKey) CollectionGroup() string {
	return k.CollectionPath().LastSegment()
}

func (k DocumentKey) DocumentID() string {
	return k.Path().LastSegment()
}

func (k DocumentKey) HasCollectionID(id string) bool {
	return k.CollectionGroup() == id
}

func (k DocumentKey) Compare(other DocumentKey) int {
	return k.Path().Compare(other.Path())
}

func (k DocumentKey) String() string {
	return k.path
}

func (k DocumentKey) MarshalText() ([]byte, error) {
	return []byte(k.path), nil
}

func (k *DocumentKey) UnmarshalText(text []byte) error {
	parsed, err := ParseDocumentKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
