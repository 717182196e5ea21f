// Package httpx abstracts the serving engine so the data-layer
// endpoints run unchanged on net/http or fasthttp. The engine is
// picked by configuration at startup.
package httpx

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Request is the unified request representation used by handlers.
// Handlers should prefer Request.Ctx for cancellation and values.
type Request struct {
	Ctx        context.Context
	Method     string
	Path       string
	Query      url.Values
	Header     http.Header
	Body       io.ReadCloser
	RemoteAddr string
	// Raw holds the underlying engine request object
	// (*http.Request or *fasthttp.RequestCtx) for escape hatches.
	Raw interface{}
}

// ResponseWriter is the subset of http.ResponseWriter semantics the
// adapters must provide. Flush pushes buffered bytes to the client;
// the streaming endpoint depends on it.
type ResponseWriter interface {
	Header() http.Header
	Write([]byte) (int, error)
	WriteHeader(status int)
	Flush()
}

// HandlerFunc is the application handler signature used across engines.
type HandlerFunc func(w ResponseWriter, r *Request)
