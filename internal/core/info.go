package core

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// RequestInit is the raw request a host hands to a render.
type RequestInit struct {
	Method      string              `json:"method"`
	Protocol    string              `json:"protocol"`
	Path        string              `json:"path"`
	Headers     map[string][]string `json:"headers"`
	Cookies     map[string]string   `json:"cookies"`
	QueryParams map[string]string   `json:"queryParams"`
	Body        string              `json:"body"`
}

// Request is the request as seen by the application.
type Request struct {
	Method      string            `json:"method"`
	Protocol    string            `json:"protocol"`
	Path        string            `json:"path"`
	Headers     *Headers          `json:"headers"`
	Cookies     map[string]string `json:"cookies"`
	QueryParams map[string]string `json:"queryParams"`
	Body        string            `json:"body"`
}

// NewRequest wraps the raw header mapping of init into a Headers value.
func NewRequest(init RequestInit) *Request {
	return &Request{
		Method:      init.Method,
		Protocol:    init.Protocol,
		Path:        init.Path,
		Headers:     NewHeaders(init.Headers),
		Cookies:     orEmpty(init.Cookies),
		QueryParams: orEmpty(init.QueryParams),
		Body:        init.Body,
	}
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Host returns the value of the host header, or "" when absent.
func (r *Request) Host() string {
	v, _ := r.Headers.Get("host")
	return v
}

// Response is the mutable response the application fills in.
type Response struct {
	Headers    *Headers `json:"headers"`
	StatusCode int      `json:"statusCode"`
}

// WaitFunc blocks until deferred application work has settled.
type WaitFunc func(ctx context.Context) error

// Info is the per-render context registered with the application
// instance. It carries the request, the response under construction,
// open metadata and the deferred-completion signal.
type Info struct {
	Request  *Request  `json:"request"`
	Response *Response `json:"response"`

	mu       sync.Mutex
	metadata map[string]any
	deferred WaitFunc
}

// NewInfo returns an Info for req with a 200 response, empty metadata
// and an already resolved deferred signal.
func NewInfo(req *Request) *Info {
	return &Info{
		Request:  req,
		Response: &Response{Headers: &Headers{}, StatusCode: 200},
		metadata: map[string]any{},
	}
}

// DeferRendering replaces the deferred signal with wait. It may be
// called once per render; later calls fail with ErrAlreadyDeferred.
func (i *Info) DeferRendering(wait WaitFunc) error {
	if wait == nil {
		return fmt.Errorf("defer rendering: nil wait function")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.deferred != nil {
		return ErrAlreadyDeferred
	}
	i.deferred = wait
	return nil
}

// Wait blocks on the deferred signal. It returns nil immediately when
// rendering was never deferred.
func (i *Info) Wait(ctx context.Context) error {
	i.mu.Lock()
	wait := i.deferred
	i.mu.Unlock()
	if wait == nil {
		return nil
	}
	return wait(ctx)
}

// SetMetadata replaces the application-defined values with a copy of m.
func (i *Info) SetMetadata(m map[string]any) {
	md := maps.Clone(m)
	if md == nil {
		md = map[string]any{}
	}
	i.mu.Lock()
	i.metadata = md
	i.mu.Unlock()
}

// Metadata returns a copy of the application-defined values.
func (i *Info) Metadata() map[string]any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return maps.Clone(i.metadata)
}
