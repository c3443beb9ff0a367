package link

import (
	"context"
	"net/http"

	"github.com/hanpama/stitchgraph/internal/reqid"
)

type headersKey struct{}

// WithForwardedHeaders returns a copy of ctx whose outgoing link requests
// carry h in addition to the link's static headers.
func WithForwardedHeaders(ctx context.Context, h http.Header) context.Context {
	if len(h) == 0 {
		return ctx
	}
	return context.WithValue(ctx, headersKey{}, h.Clone())
}

// ForwardedHeaders returns the headers attached by WithForwardedHeaders.
func ForwardedHeaders(ctx context.Context) http.Header {
	h, _ := ctx.Value(headersKey{}).(http.Header)
	return h
}

func applyHeaders(ctx context.Context, req *http.Request, static http.Header) {
	for k, vs := range static {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range ForwardedHeaders(ctx) {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if id, ok := reqid.FromContext(ctx); ok {
		req.Header.Set(reqid.Header, id)
	}
}
