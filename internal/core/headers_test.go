package core

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(h *Headers) [][2]string {
	var out [][2]string
	for k, v := range h.Entries() {
		out = append(out, [2]string{k, v})
	}
	return out
}

func TestHeadersCaseInsensitive(t *testing.T) {
	h := NewHeaders(map[string][]string{"Content-Type": {"text/html"}})

	v, ok := h.Get("content-type")
	assert.True(t, ok)
	assert.Equal(t, "text/html", v)

	v, ok = h.Get("CONTENT-TYPE")
	assert.True(t, ok)
	assert.Equal(t, "text/html", v)
	assert.True(t, h.Has("Content-type"))
}

func TestHeadersStringValuesNormalized(t *testing.T) {
	h := NewHeadersFromStrings(map[string]string{"X-Foo": "bar"})
	assert.Equal(t, []string{"bar"}, h.GetAll("x-foo"))
}

func TestHeadersGetAbsent(t *testing.T) {
	h := &Headers{}
	v, ok := h.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, v)

	all := h.GetAll("missing")
	assert.NotNil(t, all)
	assert.Empty(t, all)
	assert.False(t, h.Has("missing"))
}

func TestHeadersAppendAndSet(t *testing.T) {
	h := &Headers{}
	h.Append("X-Foo", "a")
	h.Append("x-foo", "b")
	assert.Equal(t, []string{"a", "b"}, h.GetAll("X-FOO"))

	first, _ := h.Get("x-foo")
	assert.Equal(t, "a", first)

	h.Set("X-Foo", "c")
	assert.Equal(t, []string{"c"}, h.GetAll("x-foo"))
}

func TestHeadersDelete(t *testing.T) {
	h := NewHeaders(map[string][]string{"a": {"1"}, "b": {"2"}})
	h.Delete("A")
	assert.False(t, h.Has("a"))
	assert.Len(t, slices.Collect(h.Keys()), 1)

	h.Delete("absent")
	assert.Equal(t, [][2]string{{"b", "2"}}, collect(h))
}

func TestHeadersEntriesOrder(t *testing.T) {
	h := NewHeaders(map[string][]string{"b": {"3"}, "a": {"1", "2"}})
	assert.Equal(t, [][2]string{{"a", "1"}, {"a", "2"}, {"b", "3"}}, collect(h))

	var keys, values []string
	for k := range h.Keys() {
		keys = append(keys, k)
	}
	for v := range h.Values() {
		values = append(values, v)
	}
	assert.Equal(t, []string{"a", "a", "b"}, keys)
	assert.Equal(t, []string{"1", "2", "3"}, values)
}

func TestHeadersInsertionOrderAcrossNames(t *testing.T) {
	h := &Headers{}
	h.Append("z", "1")
	h.Append("a", "2")
	h.Append("Z", "3")
	assert.Equal(t, [][2]string{{"z", "1"}, {"z", "3"}, {"a", "2"}}, collect(h))
}

func TestHeadersSequencesAreSingleUse(t *testing.T) {
	h := NewHeaders(map[string][]string{"a": {"1"}})
	seq := h.Entries()

	n := 0
	for range seq {
		n++
	}
	assert.Equal(t, 1, n)

	for range seq {
		n++
	}
	assert.Equal(t, 1, n, "an exhausted sequence must not restart")
}

func TestHeadersSequenceSnapshot(t *testing.T) {
	h := NewHeaders(map[string][]string{"a": {"1"}})
	seq := h.Keys()
	h.Append("b", "2")

	var keys []string
	for k := range seq {
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"a"}, keys)
}

func TestHeadersMergeCollidingNames(t *testing.T) {
	h := NewHeaders(map[string][]string{"Accept": {"a"}, "accept": {"b"}})
	assert.Equal(t, []string{"a", "b"}, h.GetAll("accept"))
	assert.Len(t, slices.Collect(h.Keys()), 1)
}

func TestHeadersUnknownProperty(t *testing.T) {
	h := &Headers{}
	err := h.UnknownProperty("foo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestHeadersJSON(t *testing.T) {
	var h Headers
	require.NoError(t, json.Unmarshal([]byte(`{"X-B":"1","x-a":["2","3"]}`), &h))
	assert.Equal(t, [][2]string{{"x-b", "1"}, {"x-a", "2"}, {"x-a", "3"}}, collect(&h))

	out, err := json.Marshal(&h)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x-b":["1"],"x-a":["2","3"]}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &h))
	assert.Error(t, json.Unmarshal([]byte(`[]`), &h))
}

func TestHeadersClone(t *testing.T) {
	h := NewHeaders(map[string][]string{"a": {"1"}})
	c := h.Clone()
	c.Append("a", "2")
	assert.Equal(t, []string{"1"}, h.GetAll("a"))
	assert.Equal(t, map[string][]string{"a": {"1", "2"}}, c.Map())
}
