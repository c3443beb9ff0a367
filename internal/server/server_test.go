package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	executor "github.com/hanpama/stitchgraph/internal/executor"
	language "github.com/hanpama/stitchgraph/internal/language"
	"github.com/hanpama/stitchgraph/internal/link"
	reqid "github.com/hanpama/stitchgraph/internal/reqid"
	schema "github.com/hanpama/stitchgraph/internal/schema"
	"github.com/stretchr/testify/require"
)

const testSDL = `
type Query { hello: String echo(n: Int): String }
type Mutation { bump: Int }
`

type testExecutor struct {
	validation *language.Schema
	exec       *executor.Executor
	prepared   atomic.Int32
}

func (e *testExecutor) Prepare(query string) (*language.QueryDocument, language.ErrorList) {
	e.prepared.Add(1)
	return language.LoadQuery(e.validation, query)
}

func (e *testExecutor) ExecuteDocument(ctx context.Context, doc *language.QueryDocument, operationName string, variables map[string]any) *executor.ExecutionResult {
	return e.exec.ExecuteRequest(ctx, doc, operationName, variables, nil)
}

func newTestExecutor(t *testing.T, rt executor.Runtime) *testExecutor {
	t.Helper()
	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	validation, err := language.LoadSchema("test.graphql", testSDL)
	require.NoError(t, err)
	return &testExecutor{validation: validation, exec: executor.NewExecutor(rt, sch)}
}

func newTestHandler(t *testing.T, rt executor.Runtime, opts ...Option) *Handler {
	t.Helper()
	h, err := New(newTestExecutor(t, rt), opts...)
	require.NoError(t, err)
	return h
}

func post(h http.Handler, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Add(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func helloRuntime() *executor.MockRuntime {
	return executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})
}

func TestForwardedHeaders(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var captured http.Header
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		captured = link.ForwardedHeaders(ctx)
		return "world", nil
	})
	h := newTestHandler(t, rt, WithForwardHeaders("Authorization", "x-tenant"))

	w := post(h, `{"query":"{ hello }"}`, "Authorization", "Bearer abc", "X-Tenant", "t1", "X-Other", "nope")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Bearer abc", captured.Get("Authorization"))
	require.Equal(t, "t1", captured.Get("X-Tenant"))
	require.Empty(t, captured.Get("X-Other"))
}

func TestForwardedHeadersDefaultEmpty(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var captured http.Header
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		captured = link.ForwardedHeaders(ctx)
		return "world", nil
	})
	h := newTestHandler(t, rt)

	w := post(h, `{"query":"{ hello }"}`, "Authorization", "Bearer abc")
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, captured)
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, helloRuntime(), WithCORS("*"))

	// simple request
	w := post(h, `{"query":"{ hello }"}`, "Origin", "http://example.com")
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	require.Equal(t, http.StatusNoContent, pw.Code)
	require.Equal(t, "*", pw.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "X-Test", pw.Header().Get("Access-Control-Allow-Headers"))
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestHandler(t, helloRuntime(), WithMaxBodyBytes(10))

	w := post(h, `{"query":"1234567890"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRequestID(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var capturedID string
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		capturedID, _ = reqid.FromContext(ctx)
		return "world", nil
	})
	h := newTestHandler(t, rt)

	w := post(h, `{"query":"{ hello }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, capturedID)
	require.Equal(t, capturedID, w.Header().Get(reqid.Header))

	const incoming = "5f0c6d2e-3f5a-4c1e-9a57-2b8f1a0d9e11"
	w = post(h, `{"query":"{ hello }"}`, reqid.Header, incoming)
	require.Equal(t, incoming, capturedID)
	require.Equal(t, incoming, w.Header().Get(reqid.Header))

	w = post(h, `{"query":"{ hello }"}`, reqid.Header, "not-an-id")
	require.NotEqual(t, "not-an-id", capturedID)
	require.Equal(t, capturedID, w.Header().Get(reqid.Header))
}

func TestValidationErrors(t *testing.T) {
	rt := helloRuntime()
	h := newTestHandler(t, rt)

	w := post(h, `{"query":"{ hello goodbye }"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	_, hasData := body["data"]
	require.False(t, hasData)
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	require.Contains(t, first["message"], "goodbye")
	require.Equal(t, []any{map[string]any{"line": 1.0, "column": 9.0}}, first["locations"])
	require.Empty(t, rt.GetCalls())
}

func TestDocumentCache(t *testing.T) {
	exec := newTestExecutor(t, helloRuntime())
	h, err := New(exec, WithCacheSize(2))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		w := post(h, `{"query":"{ hello }"}`)
		require.JSONEq(t, `{"data":{"hello":"world"}}`, w.Body.String())
	}
	require.EqualValues(t, 1, exec.prepared.Load())

	// invalid documents are not cached
	post(h, `{"query":"{ nope }"}`)
	post(h, `{"query":"{ nope }"}`)
	require.EqualValues(t, 3, exec.prepared.Load())

	uncached, err := New(exec, WithCacheSize(0))
	require.NoError(t, err)
	post(uncached, `{"query":"{ hello }"}`)
	post(uncached, `{"query":"{ hello }"}`)
	require.EqualValues(t, 5, exec.prepared.Load())
}

func TestGetRequests(t *testing.T) {
	rt := helloRuntime()
	rt.SetResolver("Query", "echo", func(ctx context.Context, src any, args map[string]any) (any, error) {
		return args["n"].(int) * 2, nil
	})
	rt.SetResolver("Mutation", "bump", executor.NewMockValueResolver(1))
	h := newTestHandler(t, rt)

	q := url.Values{"query": {"query Q($n: Int) { echo(n: $n) }"}, "variables": {`{"n": 21}`}}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"echo":42}}`, w.Body.String())

	q = url.Values{"query": {"mutation { bump }"}}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/?"+q.Encode(), nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.Contains(t, w.Body.String(), "not allowed over GET")
}

func TestBatch(t *testing.T) {
	h := newTestHandler(t, helloRuntime())

	w := post(h, `[{"query":"{ hello }"},{"query":"{ missing }"}]`)
	require.Equal(t, http.StatusOK, w.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, map[string]any{"hello": "world"}, out[0]["data"])
	require.NotEmpty(t, out[1]["errors"])
}

func TestGraphiQL(t *testing.T) {
	h := newTestHandler(t, helloRuntime())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/html")
	require.Contains(t, w.Body.String(), "graphiql")

	off := newTestHandler(t, helloRuntime(), WithGraphiQL(false))
	w = httptest.NewRecorder()
	off.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
