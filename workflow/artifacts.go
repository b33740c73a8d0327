// ABOUTME: ArtifactSet is an insertion-ordered key->text map of generated artifacts.
// ABOUTME: Keys are appended or replaced, never removed, so artifact history stays stable.
package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ArtifactSet holds generated text artifacts in insertion order. Replacing an
// existing key keeps its original position.
type ArtifactSet struct {
	data map[string]string
	keys []string
}

// NewArtifactSet creates an empty ArtifactSet.
func NewArtifactSet() *ArtifactSet {
	return &ArtifactSet{data: make(map[string]string)}
}

// Set inserts or replaces an artifact.
func (a *ArtifactSet) Set(key, text string) {
	if _, exists := a.data[key]; !exists {
		a.keys = append(a.keys, key)
	}
	a.data[key] = text
}

// Get retrieves an artifact by key.
func (a *ArtifactSet) Get(key string) (string, bool) {
	v, ok := a.data[key]
	return v, ok
}

// Len returns the number of artifacts.
func (a *ArtifactSet) Len() int {
	return len(a.keys)
}

// Keys returns all keys in insertion order.
func (a *ArtifactSet) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Snapshot returns a plain map copy of all artifacts.
func (a *ArtifactSet) Snapshot() map[string]string {
	out := make(map[string]string, len(a.data))
	for k, v := range a.data {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy preserving insertion order.
func (a *ArtifactSet) Clone() *ArtifactSet {
	if a == nil {
		return NewArtifactSet()
	}
	c := NewArtifactSet()
	for _, k := range a.keys {
		c.Set(k, a.data[k])
	}
	return c
}

// MarshalJSON serializes the set as a JSON object with keys in insertion order.
func (a *ArtifactSet) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range a.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(a.data[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON rebuilds the set from a JSON object, preserving the key order
// of the encoded document.
func (a *ArtifactSet) UnmarshalJSON(data []byte) error {
	a.data = make(map[string]string)
	a.keys = nil

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("artifact set: expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("artifact set: non-string key %v", keyTok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("artifact set: value for %q: %w", key, err)
		}
		a.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
