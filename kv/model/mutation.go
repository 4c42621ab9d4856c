package model

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
)

type MutationType int

const (
	SetMutation MutationType = iota
	PatchMutation
	DeleteMutation
	VerifyMutation
)

func (t MutationType) String() string {
	switch t {
	case SetMutation:
		return "set"
	case PatchMutation:
		return "patch"
	case DeleteMutation:
		return "delete"
	case VerifyMutation:
		return "verify"
	}
	return fmt.Sprintf("MutationType(%d)", int(t))
}

// Mutation is one pending local write to a document. How it applies to a
// document is decided elsewhere; here it is an immutable value that is stored
// and returned as-is.
type Mutation struct {
	Type MutationType `json:"type"`
	Key  DocumentKey  `json:"key"`
	// Value holds the document fields as a compact JSON object. It is kept
	// encoded so that numbers survive storage exactly.
	Value json.RawMessage `json:"value,omitempty"`
	// FieldMask lists the fields a patch touches.
	FieldMask []string `json:"fieldMask,omitempty"`
}

func NewSetMutation(key DocumentKey, value json.RawMessage) Mutation {
	return Mutation{Type: SetMutation, Key: key, Value: value}
}

func NewPatchMutation(key DocumentKey, value json.RawMessage, mask []string) Mutation {
	return Mutation{Type: PatchMutation, Key: key, Value: value, FieldMask: mask}
}

func NewDeleteMutation(key DocumentKey) Mutation {
	return Mutation{Type: DeleteMutation, Key: key}
}

// EncodeFields compacts a JSON object into a mutation value. Anything other
// than an object is rejected.
func EncodeFields(raw []byte) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Annotate(err, "mutation value must be a json object")
	}
	if fields == nil {
		return nil, errors.New("mutation value must be a json object")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// Fields decodes the mutation value. Numbers are returned as json.Number so
// integers beyond 2^53 keep their precision.
func (m Mutation) Fields() (map[string]interface{}, error) {
	if len(m.Value) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(m.Value))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.Annotatef(err, "decode fields of %s", m.Key)
	}
	return fields, nil
}
