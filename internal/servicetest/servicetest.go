// Package servicetest runs in-process GraphQL services for tests.
//
// A Service is built from SDL and a set of resolvers keyed by "Type.field".
// Fields without a resolver read the value stored under their name in the
// parent map. Every request is validated, executed, and JSON-encoded the way
// a real server would answer it, and is recorded for later inspection.
package servicetest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	executor "github.com/hanpama/stitchgraph/internal/executor"
	introspection "github.com/hanpama/stitchgraph/internal/introspection"
	language "github.com/hanpama/stitchgraph/internal/language"
	"github.com/hanpama/stitchgraph/internal/link"
	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// Resolver answers one field from its parent value and arguments.
type Resolver func(source any, args map[string]any) (any, error)

// Interceptor runs before a request is executed. A non-nil error fails the
// request at the transport level.
type Interceptor func(ctx context.Context, req *link.Request) error

type Service struct {
	Name string

	validation *language.Schema
	exec       *executor.Executor

	mu          sync.Mutex
	requests    []link.Request
	interceptor Interceptor
}

// New builds a service from sdl.
func New(name, sdl string, resolvers map[string]Resolver) (*Service, error) {
	validation, err := language.LoadSchema(name, sdl)
	if err != nil {
		return nil, err
	}
	sch, err := schema.BuildFromAST(validation)
	if err != nil {
		return nil, err
	}
	w := introspection.Wrap(&runtime{resolvers: resolvers}, sch)
	return &Service{
		Name:       name,
		validation: validation,
		exec:       executor.NewExecutor(w.Runtime, w.Schema),
	}, nil
}

// MustNew is New for tests.
func MustNew(t testing.TB, name, sdl string, resolvers map[string]Resolver) *Service {
	t.Helper()
	s, err := New(name, sdl, resolvers)
	if err != nil {
		t.Fatalf("servicetest: %s: %v", name, err)
	}
	return s
}

// Link returns an in-process link to the service.
func (s *Service) Link() link.Link { return link.Func(s.Execute) }

// Intercept installs f in front of every following request.
func (s *Service) Intercept(f Interceptor) {
	s.mu.Lock()
	s.interceptor = f
	s.mu.Unlock()
}

// Requests returns the requests received so far.
func (s *Service) Requests() []link.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]link.Request(nil), s.requests...)
}

// Reset forgets recorded requests.
func (s *Service) Reset() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

// Execute answers req. The request goes through a JSON round trip first so
// resolvers see exactly what a remote server would.
func (s *Service) Execute(ctx context.Context, req *link.Request) (*link.Response, error) {
	wire, err := roundTrip(req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.requests = append(s.requests, *wire)
	intercept := s.interceptor
	s.mu.Unlock()

	if intercept != nil {
		if err := intercept(ctx, wire); err != nil {
			return nil, err
		}
	}

	doc, errs := language.LoadQuery(s.validation, wire.Query)
	if len(errs) > 0 {
		resp := &link.Response{}
		for _, e := range errs {
			resp.Errors = append(resp.Errors, link.RemoteError{Message: e.Message})
		}
		return resp, nil
	}
	res := s.exec.ExecuteRequest(ctx, doc, wire.OperationName, wire.Variables, nil)
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return link.Decode(raw)
}

// ServeHTTP serves the service as a GraphQL over HTTP endpoint.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req link.Request
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := s.Execute(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func roundTrip(req *link.Request) (*link.Request, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("servicetest: encode request: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out link.Request
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

type runtime struct {
	resolvers map[string]Resolver
}

func (r *runtime) ResolveSync(_ context.Context, info executor.FieldInfo, source any, args map[string]any) (any, error) {
	if f := r.resolvers[info.ObjectType+"."+info.Field]; f != nil {
		return f(source, args)
	}
	m, _ := source.(map[string]any)
	return m[info.Field], nil
}

func (r *runtime) BatchResolveAsync(_ context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return make([]executor.AsyncResolveResult, len(tasks))
}

func (r *runtime) ResolveType(_ context.Context, abstractType string, value any) (string, error) {
	m, _ := value.(map[string]any)
	if name, ok := m["__typename"].(string); ok {
		return name, nil
	}
	return "", fmt.Errorf("value of %s has no __typename", abstractType)
}

func (r *runtime) SerializeLeafValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}
