package executor

import (
	"context"
	"fmt"
	"sync"
)

// MockResolver resolves one field value for MockRuntime.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

// Call kinds recorded by MockRuntime.
const (
	CallKindSync  = "sync"
	CallKindAsync = "async"
)

// NewMockValueResolver returns a MockResolver that always returns val.
func NewMockValueResolver(val any) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return val, nil }
}

// NewMockErrorResolver returns a MockResolver that always fails with err.
func NewMockErrorResolver(err error) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

// Call records one resolver invocation. Async calls of the same
// BatchResolveAsync share a BatchID, numbered from 1; sync calls have 0.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	BatchID    int
}

// MockRuntime is a Runtime backed by resolvers keyed "Type.field". Abstract
// values name their type in a "__typename" entry and leaf values are
// returned unchanged.
type MockRuntime struct {
	mu        sync.Mutex
	resolvers map[string]MockResolver
	calls     []Call
	batches   [][]AsyncResolveTask
}

var _ Runtime = (*MockRuntime)(nil)

func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{resolvers: make(map[string]MockResolver, len(resolvers))}
	for k, v := range resolvers {
		m.resolvers[k] = v
	}
	return m
}

// SetResolver registers or replaces the resolver of objectType.field.
func (m *MockRuntime) SetResolver(objectType, field string, resolver MockResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvers[objectType+"."+field] = resolver
}

// record logs a call and returns the field's resolver, which may be nil.
func (m *MockRuntime) record(c Call) MockResolver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	return m.resolvers[c.ObjectType+"."+c.Field]
}

func (m *MockRuntime) ResolveSync(ctx context.Context, info FieldInfo, source any, args map[string]any) (any, error) {
	r := m.record(Call{Kind: CallKindSync, ObjectType: info.ObjectType, Field: info.Field, Source: source, Args: args})
	if r == nil {
		return nil, nil
	}
	return r(ctx, source, args)
}

// BatchResolveAsync resolves tasks field by field, visiting fields in the
// order they first appear in the batch.
func (m *MockRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	if len(tasks) == 0 {
		return nil
	}
	m.mu.Lock()
	m.batches = append(m.batches, append([]AsyncResolveTask(nil), tasks...))
	batchID := len(m.batches)
	m.mu.Unlock()

	var order []string
	byField := make(map[string][]int)
	for i, t := range tasks {
		key := t.ObjectType + "." + t.Field
		if _, seen := byField[key]; !seen {
			order = append(order, key)
		}
		byField[key] = append(byField[key], i)
	}

	results := make([]AsyncResolveResult, len(tasks))
	for _, key := range order {
		for _, i := range byField[key] {
			t := tasks[i]
			r := m.record(Call{Kind: CallKindAsync, ObjectType: t.ObjectType, Field: t.Field, Source: t.Source, Args: t.Args, BatchID: batchID})
			if r == nil {
				continue
			}
			v, err := r(ctx, t.Source, t.Args)
			results[i] = AsyncResolveResult{Value: v, Error: err}
		}
	}
	return results
}

func (m *MockRuntime) ResolveType(_ context.Context, abstractType string, value any) (string, error) {
	if obj, ok := value.(map[string]any); ok {
		if name, ok := obj["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve the concrete type of %s", abstractType)
}

func (m *MockRuntime) SerializeLeafValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

// GetCalls returns a copy of the recorded calls in order.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// GetBatches returns the task lists passed to BatchResolveAsync, one per call.
func (m *MockRuntime) GetBatches() [][]AsyncResolveTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]AsyncResolveTask(nil), m.batches...)
}

// Reset forgets recorded calls and batches. Resolvers are kept.
func (m *MockRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.batches = nil
}
