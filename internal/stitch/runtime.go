package stitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	eventbus "github.com/hanpama/stitchgraph/internal/eventbus"
	events "github.com/hanpama/stitchgraph/internal/events"
	executor "github.com/hanpama/stitchgraph/internal/executor"
	language "github.com/hanpama/stitchgraph/internal/language"
	"github.com/hanpama/stitchgraph/internal/link"
	"github.com/hanpama/stitchgraph/internal/remote"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runtime implements executor.Runtime over a Graph.
//   - Root fields are delegated to the service owning them.
//   - Extension fields are resolved by their Binding.
//   - Every other field is read from the parent value a service returned.
//
// Within one batch, identical query delegations to the same service are sent
// once. Mutation root fields run one after another in document order.
type Runtime struct {
	graph          *Graph
	logger         *zap.Logger
	maxConcurrency int
}

var _ executor.Runtime = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger. A nil logger discards.
func WithLogger(l *zap.Logger) Option { return func(r *Runtime) { r.logger = l } }

// WithMaxConcurrency bounds the delegations in flight per batch. Zero or a
// negative n means no bound.
func WithMaxConcurrency(n int) Option { return func(r *Runtime) { r.maxConcurrency = n } }

func NewRuntime(g *Graph, opts ...Option) *Runtime {
	r := &Runtime{graph: g}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Graph returns the graph the runtime serves.
func (r *Runtime) Graph() *Graph { return r.graph }

// ResolveSync reads a field the owning service already returned. The key is
// the response name because delegated selections keep the caller's aliases.
func (r *Runtime) ResolveSync(_ context.Context, info executor.FieldInfo, source any, _ map[string]any) (any, error) {
	m, ok := source.(map[string]any)
	if !ok {
		return nil, nil
	}
	return m[info.ResponseName], nil
}

// BatchResolveAsync resolves root and extension fields. Results keep the
// order of tasks and errors stay with their task.
func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	b := &batch{runtime: r, calls: make(map[string]*call)}

	var serial, parallel []int
	for i, t := range tasks {
		if t.ObjectType == r.graph.Schema.MutationType && r.graph.Schema.MutationType != "" {
			serial = append(serial, i)
		} else {
			parallel = append(parallel, i)
		}
	}
	for _, i := range serial {
		results[i] = b.resolve(ctx, tasks[i])
	}

	var g errgroup.Group
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}
	for _, i := range parallel {
		g.Go(func() error {
			results[i] = b.resolve(ctx, tasks[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ResolveType reads the concrete type name fetched next to abstract values.
func (r *Runtime) ResolveType(_ context.Context, abstractType string, value any) (string, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return "", fmt.Errorf("stitch: value of %s is %T, not an object", abstractType, value)
	}
	for _, key := range []string{TypenameKey, "__typename"} {
		if name, ok := m[key].(string); ok && name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("stitch: value of %s has no type name", abstractType)
}

// SerializeLeafValue passes values through; services already serialized them.
func (r *Runtime) SerializeLeafValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

// batch is the state shared by the tasks of one BatchResolveAsync call.
type batch struct {
	runtime *Runtime

	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	once   sync.Once
	result remote.Result
	err    error
}

func (b *batch) resolve(ctx context.Context, t executor.AsyncResolveTask) executor.AsyncResolveResult {
	start := time.Now()
	g := b.runtime.graph

	var (
		service string
		result  remote.Result
		err     error
	)
	if bd := g.Binding(t.ObjectType, t.Field); bd != nil {
		service = bd.Service.Name
		result, err = bd.Resolve(ctx, t.Source, t.Args, t.FieldInfo, &Capability{binding: bd, dispatch: b.dispatch})
		var fe *FragmentResolutionError
		if errors.As(err, &fe) {
			b.runtime.logger.Error("required fragment missing from parent",
				zap.String("field", bd.Type+"."+bd.Field),
				zap.Strings("missing", fe.Missing),
				zap.Error(err),
			)
		}
	} else {
		op := language.Query
		if t.ObjectType == g.Schema.MutationType {
			op = language.Mutation
		}
		owner := g.Owner(op, t.Field)
		if owner == nil {
			err = fmt.Errorf("stitch: no service answers %s.%s", t.ObjectType, t.Field)
		} else {
			service = owner.Name
			result, err = b.dispatch(ctx, owner, g.delegatedQuery(op, t.Field, t.Args, t.FieldInfo))
		}
	}

	if service != "" {
		eventbus.Publish(ctx, events.DelegationFinish{
			Service:  service,
			Type:     t.ObjectType,
			Field:    t.Field,
			Err:      err,
			Duration: time.Since(start),
		})
	}
	if err != nil {
		b.runtime.logger.Debug("delegation failed",
			zap.String("service", service),
			zap.String("field", t.ObjectType+"."+t.Field),
			zap.Error(err),
		)
		return executor.AsyncResolveResult{Error: err}
	}
	return executor.AsyncResolveResult{Value: result.Value, Errors: fieldErrors(result.Errors)}
}

// fieldErrors converts errors a service reported below a delegated field.
func fieldErrors(errs []link.RemoteError) []executor.FieldError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]executor.FieldError, len(errs))
	for i, e := range errs {
		path := make(executor.Path, len(e.Path))
		for j, elem := range e.Path {
			path[j] = elem
		}
		out[i] = executor.FieldError{Message: e.Message, Path: path, Extensions: e.Extensions}
	}
	return out
}

// dispatch sends q to d. Equal queries of one batch share a single request;
// mutations are never shared.
func (b *batch) dispatch(ctx context.Context, d *remote.Descriptor, q *remote.DelegatedQuery) (remote.Result, error) {
	req, err := d.Prepare(q)
	if err != nil {
		return remote.Result{}, &remote.DelegationError{Service: d.Name, Field: q.FieldName, Err: err}
	}
	if q.Operation == language.Mutation {
		return d.Dispatch(ctx, q.FieldName, req)
	}
	vars, err := json.Marshal(req.Variables)
	if err != nil {
		return d.Dispatch(ctx, q.FieldName, req)
	}
	key := d.Name + "\x00" + req.Query + "\x00" + string(vars)
	b.mu.Lock()
	c, ok := b.calls[key]
	if !ok {
		c = &call{}
		b.calls[key] = c
	}
	b.mu.Unlock()
	c.once.Do(func() { c.result, c.err = d.Dispatch(ctx, q.FieldName, req) })
	return c.result, c.err
}
