package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
)

// Headers is a case-insensitive, multi-valued header collection. Names
// are folded to lower case on every operation and keep the order in
// which they were first added. The zero value is an empty collection.
type Headers struct {
	mu     sync.RWMutex
	names  []string
	values map[string][]string
}

// NewHeaders builds a collection from a raw header mapping. Go maps have
// no order, so names are added in lexical order; names that collide
// after case folding are merged.
func NewHeaders(raw map[string][]string) *Headers {
	h := &Headers{}
	for _, name := range sortedKeys(raw) {
		for _, v := range raw[name] {
			h.Append(name, v)
		}
	}
	return h
}

// NewHeadersFromStrings builds a collection from single-valued headers.
func NewHeadersFromStrings(raw map[string]string) *Headers {
	h := &Headers{}
	for _, name := range sortedKeys(raw) {
		h.Append(name, raw[name])
	}
	return h
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func fold(name string) string {
	return strings.ToLower(name)
}

// Get returns the first value stored for name.
func (h *Headers) Get(name string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	vals := h.values[fold(name)]
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// GetAll returns a copy of every value stored for name. The result is
// empty, not nil, when name is absent.
func (h *Headers) GetAll(name string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string{}, h.values[fold(name)]...)
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.values[fold(name)]
	return ok
}

// Set replaces all values of name with the single value.
func (h *Headers) Set(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := fold(name)
	if _, ok := h.values[key]; !ok {
		h.names = append(h.names, key)
	}
	if h.values == nil {
		h.values = make(map[string][]string)
	}
	h.values[key] = []string{value}
}

// Append adds value after the existing values of name.
func (h *Headers) Append(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := fold(name)
	if h.values == nil {
		h.values = make(map[string][]string)
	}
	if _, ok := h.values[key]; !ok {
		h.names = append(h.names, key)
	}
	h.values[key] = append(h.values[key], value)
}

// Delete removes name and all of its values. Deleting an absent name is
// a no-op.
func (h *Headers) Delete(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := fold(name)
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	h.names = slices.DeleteFunc(h.names, func(n string) bool { return n == key })
}

type pair struct{ name, value string }

func (h *Headers) snapshot() []pair {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []pair
	for _, name := range h.names {
		for _, v := range h.values[name] {
			out = append(out, pair{name, v})
		}
	}
	return out
}

// Entries returns a single-use sequence of (name, value) pairs taken
// from the collection at call time. A name with several values is
// yielded once per value.
func (h *Headers) Entries() iter.Seq2[string, string] {
	pairs := h.snapshot()
	used := false
	return func(yield func(string, string) bool) {
		if used {
			return
		}
		used = true
		for _, p := range pairs {
			if !yield(p.name, p.value) {
				return
			}
		}
	}
}

// Keys returns a single-use sequence of names, repeated once per value.
func (h *Headers) Keys() iter.Seq[string] {
	pairs := h.snapshot()
	used := false
	return func(yield func(string) bool) {
		if used {
			return
		}
		used = true
		for _, p := range pairs {
			if !yield(p.name) {
				return
			}
		}
	}
}

// Values returns a single-use sequence of every value in entry order.
func (h *Headers) Values() iter.Seq[string] {
	pairs := h.snapshot()
	used := false
	return func(yield func(string) bool) {
		if used {
			return
		}
		used = true
		for _, p := range pairs {
			if !yield(p.value) {
				return
			}
		}
	}
}

// UnknownProperty rejects dynamic property access on the collection.
func (h *Headers) UnknownProperty(name string) error {
	return fmt.Errorf("headers do not support dynamic property %q: %w", name, ErrUnsupportedOperation)
}

// Map returns a copy of the collection keyed by lower-cased name.
func (h *Headers) Map() map[string][]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string][]string, len(h.names))
	for _, name := range h.names {
		out[name] = append([]string(nil), h.values[name]...)
	}
	return out
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	c := &Headers{}
	for _, p := range h.snapshot() {
		c.Append(p.name, p.value)
	}
	return c
}

// MarshalJSON encodes the collection as an object of value arrays in
// insertion order.
func (h *Headers) MarshalJSON() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range h.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(name)
		v, err := json.Marshal(h.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts an object whose values are strings or arrays of
// strings and keeps the document order of its names.
func (h *Headers) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("headers: expected object, got %v", tok)
	}
	fresh := &Headers{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var one string
		if err := json.Unmarshal(raw, &one); err == nil {
			fresh.Append(name, one)
			continue
		}
		var many []string
		if err := json.Unmarshal(raw, &many); err != nil {
			return fmt.Errorf("headers: value of %q must be a string or string array", name)
		}
		for _, v := range many {
			fresh.Append(name, v)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	h.mu.Lock()
	h.names, h.values = fresh.names, fresh.values
	h.mu.Unlock()
	return nil
}
