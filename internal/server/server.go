package server

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"time"

	eventbus "github.com/hanpama/stitchgraph/internal/eventbus"
	events "github.com/hanpama/stitchgraph/internal/events"
	executor "github.com/hanpama/stitchgraph/internal/executor"
	language "github.com/hanpama/stitchgraph/internal/language"
	"github.com/hanpama/stitchgraph/internal/link"
	reqid "github.com/hanpama/stitchgraph/internal/reqid"
	lru "github.com/hashicorp/golang-lru/v2"
)

//go:embed graphiql.html
var graphiqlPage []byte

// Executor prepares and runs GraphQL documents. *gateway.System implements it.
type Executor interface {
	Prepare(query string) (*language.QueryDocument, language.ErrorList)
	ExecuteDocument(ctx context.Context, doc *language.QueryDocument, operationName string, variables map[string]any) *executor.ExecutionResult
}

// Handler serves the gateway's GraphQL endpoint over HTTP: single and
// batched POST bodies, GET query strings and, for browsers, GraphiQL.
type Handler struct {
	exec  Executor
	opt   Options
	cache *lru.Cache[string, *language.QueryDocument]
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// ForwardHeaders lists client HTTP headers passed on to the remote
	// services. Header names are case-insensitive. Default is none.
	ForwardHeaders []string

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// CacheSize is the number of validated documents kept for reuse.
	// 0 disables the cache.
	CacheSize int
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithForwardHeaders(headers ...string) Option {
	return func(o *Options) { o.ForwardHeaders = headers }
}
func WithCacheSize(n int) Option { return func(o *Options) { o.CacheSize = n } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func WithGraphiQL(enable bool) Option { return func(o *Options) { o.GraphiQL = enable } }

// DefaultCacheSize is the number of documents cached unless WithCacheSize
// says otherwise.
const DefaultCacheSize = 1000

// New creates a new GraphQL HTTP handler serving exec.
func New(exec Executor, opts ...Option) (*Handler, error) {
	op := Options{Timeout: 10 * time.Second, GraphiQL: true, CacheSize: DefaultCacheSize}
	for _, f := range opts {
		f(&op)
	}
	h := &Handler{exec: exec, opt: op}
	if op.CacheSize > 0 {
		cache, err := lru.New[string, *language.QueryDocument](op.CacheSize)
		if err != nil {
			return nil, err
		}
		h.cache = cache
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.WithID(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{RequestID: rid, Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{RequestID: rid, Request: r, Status: status, Duration: time.Since(start)})
	}()
	allowOrigin(w, r, h.opt.CORS.AllowedOrigins)

	switch {
	case r.Method == http.MethodOptions:
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	case r.Method != http.MethodPost && r.Method != http.MethodGet:
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, messageResponse("method not allowed"), h.opt.Pretty)
		return
	case r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && !r.URL.Query().Has("query"):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	reqs, batched, err := readRequests(w, r, h.opt.MaxBodyBytes)
	if err != nil {
		status = http.StatusBadRequest
		var rerr *requestError
		if errors.As(err, &rerr) {
			status = rerr.status
		}
		writeJSON(w, status, messageResponse(err.Error()), h.opt.Pretty)
		return
	}

	ctx = h.forward(ctx, r.Header)
	if !batched {
		var res any
		res, status = h.executeOne(ctx, r.Method, rid, reqs[0])
		writeJSON(w, status, res, h.opt.Pretty)
		return
	}
	out := make([]any, len(reqs))
	for i, req := range reqs {
		out[i], _ = h.executeOne(ctx, r.Method, rid, req)
	}
	writeJSON(w, status, out, h.opt.Pretty)
}

// forward attaches the configured client headers for the remote services.
func (h *Handler) forward(ctx context.Context, header http.Header) context.Context {
	if len(h.opt.ForwardHeaders) == 0 {
		return ctx
	}
	fwd := http.Header{}
	for _, name := range h.opt.ForwardHeaders {
		for _, v := range header.Values(name) {
			fwd.Add(name, v)
		}
	}
	return link.WithForwardedHeaders(ctx, fwd)
}

// prepare returns the validated document for query, from the cache when it
// has been seen before. Invalid documents are never cached.
func (h *Handler) prepare(query string) (*language.QueryDocument, language.ErrorList) {
	if h.cache != nil {
		if doc, ok := h.cache.Get(query); ok {
			return doc, nil
		}
	}
	doc, errs := h.exec.Prepare(query)
	if len(errs) > 0 {
		return nil, errs
	}
	if h.cache != nil {
		h.cache.Add(query, doc)
	}
	return doc, nil
}

func (h *Handler) executeOne(ctx context.Context, method, rid string, req Request) (any, int) {
	start := time.Now()
	finish := func(opType string, errs []error) {
		eventbus.Publish(ctx, events.GraphQLFinish{
			RequestID:     rid,
			Query:         req.Query,
			OperationName: req.OperationName,
			OperationType: opType,
			Errors:        errs,
			Duration:      time.Since(start),
		})
	}

	doc, verrs := h.prepare(req.Query)
	if len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		eventbus.Publish(ctx, events.GraphQLStart{RequestID: rid, Query: req.Query, OperationName: req.OperationName})
		finish("", errs)
		return validationResponse(verrs), http.StatusOK
	}

	opType := ""
	if op := selectOperation(doc, req.OperationName); op != nil {
		opType = string(op.Operation)
		if method == http.MethodGet && op.Operation != language.Query {
			return messageResponse(opType + " operations are not allowed over GET"), http.StatusMethodNotAllowed
		}
	}

	eventbus.Publish(ctx, events.GraphQLStart{RequestID: rid, Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	result := h.exec.ExecuteDocument(ctx, doc, req.OperationName, req.Variables)
	errs := make([]error, len(result.Errors))
	for i, e := range result.Errors {
		errs[i] = e
	}
	finish(opType, errs)
	return result, http.StatusOK
}

func selectOperation(doc *language.QueryDocument, name string) *language.OperationDefinition {
	if name == "" && len(doc.Operations) == 1 {
		return doc.Operations[0]
	}
	return doc.Operations.ForName(name)
}
