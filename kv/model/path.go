package model

import (
	"strings"

	"github.com/pingcap/errors"
)

const pathSeparator = "/"

// ResourcePath is a hierarchical path of non-empty segments, alternating
// collection ids and document ids: rooms/1/messages/a.
type ResourcePath struct {
	segments []string
}

// NewResourcePath builds a path from its segments. A segment may not be empty
// or contain a slash.
func NewResourcePath(segments ...string) (ResourcePath, error) {
	if err := validateSegments(segments); err != nil {
		return ResourcePath{}, err
	}
	return ResourcePath{segments: append([]string(nil), segments...)}, nil
}

func validateSegments(segments []string) error {
	for i, seg := range segments {
		if seg == "" {
			return errors.Errorf("invalid path segment %d: empty", i)
		}
		if strings.Contains(seg, pathSeparator) {
			return errors.Errorf("invalid path segment %d %q: contains %q", i, seg, pathSeparator)
		}
	}
	return nil
}

// ParseResourcePath parses a slash separated path. Leading and trailing
// slashes are ignored; empty segments in between are an error.
func ParseResourcePath(s string) (ResourcePath, error) {
	s = strings.Trim(s, pathSeparator)
	if s == "" {
		return ResourcePath{}, nil
	}
	segments := strings.Split(s, pathSeparator)
	if err := validateSegments(segments); err != nil {
		return ResourcePath{}, errors.Annotatef(err, "invalid path %q", s)
	}
	return ResourcePath{segments: segments}, nil
}

func (p ResourcePath) Len() int {
	return len(p.segments)
}

func (p ResourcePath) IsEmpty() bool {
	return len(p.segments) == 0
}

// Segments returns a copy of the path segments.
func (p ResourcePath) Segments() []string {
	return append([]string(nil), p.segments...)
}

func (p ResourcePath) Segment(i int) string {
	return p.segments[i]
}

// LastSegment returns the final segment, or "" for the empty path.
func (p ResourcePath) LastSegment() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

func (p ResourcePath) Child(segments ...string) (ResourcePath, error) {
	if err := validateSegments(segments); err != nil {
		return ResourcePath{}, err
	}
	out := make([]string, 0, len(p.segments)+len(segments))
	out = append(out, p.segments...)
	return ResourcePath{segments: append(out, segments...)}, nil
}

// PopLast returns the parent path. The parent of the empty path is empty.
func (p ResourcePath) PopLast() ResourcePath {
	if len(p.segments) == 0 {
		return p
	}
	return ResourcePath{segments: p.segments[:len(p.segments)-1]}
}

// IsImmediateParentOf reports whether other is exactly one segment below p.
func (p ResourcePath) IsImmediateParentOf(other ResourcePath) bool {
	return p.Len()+1 == other.Len() && p.IsPrefixOf(other)
}

func (p ResourcePath) IsPrefixOf(other ResourcePath) bool {
	if p.Len() > other.Len() {
		return false
	}
	for i, seg := range p.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}

// Compare orders paths segment by segment; a proper prefix sorts first.
func (p ResourcePath) Compare(other ResourcePath) int {
	n := p.Len()
	if other.Len() < n {
		n = other.Len()
	}
	for i := 0; i < n; i++ {
		if c := strings.Compare(p.segments[i], other.segments[i]); c != 0 {
			return c
		}
	}
	switch {
	case p.Len() < other.Len():
		return -1
	case p.Len() > other.Len():
		return 1
	}
	return 0
}

func (p ResourcePath) Equal(other ResourcePath) bool {
	return p.Compare(other) == 0
}

// String returns the canonical slash separated form.
func (p ResourcePath) String() string {
	return strings.Join(p.segments, pathSeparator)
}
