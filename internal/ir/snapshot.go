package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Snapshot is the deserialized body of the most recent fetch of a resource.
//
// The document has no fixed schema: objects decode to map[string]any,
// numbers to float64, so paths can be resolved without knowing the resource
// type. A Snapshot is never mutated after ParseSnapshot returns; each poll
// produces a new one. Callers must treat Document() as read-only.
//
// The zero Snapshot is the empty snapshot (used for Deleted outcomes).
type Snapshot struct {
	raw []byte
	doc map[string]any
}

// ParseSnapshot decodes a JSON object body into a Snapshot.
// Non-object bodies are rejected: a resource representation is always an object.
func ParseSnapshot(body []byte) (Snapshot, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Snapshot{}, fmt.Errorf("snapshot body is empty")
	}

	var doc map[string]any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot body is not a JSON object: %w", err)
	}
	if doc == nil {
		return Snapshot{}, fmt.Errorf("snapshot body is null")
	}

	raw := make([]byte, len(trimmed))
	copy(raw, trimmed)
	return Snapshot{raw: raw, doc: doc}, nil
}

// MustSnapshot is ParseSnapshot for literals in tests. Panics on invalid input.
func MustSnapshot(body string) Snapshot {
	s, err := ParseSnapshot([]byte(body))
	if err != nil {
		panic(err)
	}
	return s
}

// IsEmpty reports whether the snapshot carries no document.
func (s Snapshot) IsEmpty() bool {
	return s.doc == nil
}

// Document returns the decoded document, or nil for the empty snapshot.
// The returned value is shared; do not modify it.
func (s Snapshot) Document() any {
	if s.doc == nil {
		return nil
	}
	return s.doc
}

// Bytes returns a copy of the body the snapshot was parsed from.
func (s Snapshot) Bytes() []byte {
	if s.raw == nil {
		return nil
	}
	out := make([]byte, len(s.raw))
	copy(out, s.raw)
	return out
}

// MarshalJSON emits the original body, or null for the empty snapshot.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.raw == nil {
		return []byte("null"), nil
	}
	return s.Bytes(), nil
}

// Canonical returns the RFC 8785 canonical encoding of the document.
func (s Snapshot) Canonical() ([]byte, error) {
	if s.doc == nil {
		return []byte("null"), nil
	}
	return MarshalCanonical(s.doc)
}

// Digest returns a content hash of the document, stable across key order
// and whitespace. Empty snapshots have an empty digest.
func (s Snapshot) Digest() string {
	if s.doc == nil {
		return ""
	}
	canonical, err := MarshalCanonical(s.doc)
	if err != nil {
		// Documents decoded by encoding/json are always encodable.
		return ""
	}
	return hashWithDomain(DomainSnapshot, canonical)
}
