package core

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest(RequestInit{
		Method:  "GET",
		Path:    "/foo",
		Headers: map[string][]string{"Host": {"example.com"}},
	})
	assert.Equal(t, "example.com", req.Host())
	assert.NotNil(t, req.Cookies)
	assert.NotNil(t, req.QueryParams)

	empty := NewRequest(RequestInit{})
	assert.Equal(t, "", empty.Host())
}

func TestInfoDefaults(t *testing.T) {
	info := NewInfo(NewRequest(RequestInit{}))
	assert.Equal(t, 200, info.Response.StatusCode)
	assert.Empty(t, slices.Collect(info.Response.Headers.Keys()))
	assert.Empty(t, info.Metadata())
	assert.NoError(t, info.Wait(context.Background()))
}

func TestInfoDeferRendering(t *testing.T) {
	info := NewInfo(NewRequest(RequestInit{}))
	boom := errors.New("boom")

	called := false
	require.NoError(t, info.DeferRendering(func(context.Context) error {
		called = true
		return boom
	}))
	assert.ErrorIs(t, info.DeferRendering(func(context.Context) error { return nil }), ErrAlreadyDeferred)

	assert.ErrorIs(t, info.Wait(context.Background()), boom)
	assert.True(t, called)
}

func TestInfoMetadata(t *testing.T) {
	info := NewInfo(NewRequest(RequestInit{}))
	in := map[string]any{"title": "Hello"}
	info.SetMetadata(in)
	in["title"] = "changed"
	md := info.Metadata()
	md["title"] = "changed"
	assert.Equal(t, "Hello", info.Metadata()["title"])

	info.SetMetadata(nil)
	assert.NotNil(t, info.Metadata())
	assert.Empty(t, info.Metadata())
}
