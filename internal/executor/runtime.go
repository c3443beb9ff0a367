package executor

import (
	"context"

	language "github.com/hanpama/stitchgraph/internal/language"
	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// Runtime defines the host integration surface for field resolution, batching,
// abstract type resolution, and leaf-value serialization used by the Executor.
//
// General contract
//   - The Executor performs a breadth-first execution. At each depth it drains all
//     synchronous fields first via ResolveSync, then calls BatchResolveAsync ONCE
//     with all async tasks collected at that depth. The next depth does not begin
//     until BatchResolveAsync returns and those results are completed.
//   - ResolveSync is never invoked for fields marked async, and BatchResolveAsync
//     is only invoked when there is at least one async field at the current depth.
//   - Errors returned from any method are converted into located GraphQL errors.
//     An error that implements ExtendedError contributes its extensions. If the
//     field's return type is Non-Null, the null propagates to the nearest
//     nullable ancestor.
//   - Implementations must be safe for concurrent use by independent requests
//     and must not mutate source or args values.
//
// Field context
//   - FieldInfo identifies the field being resolved and carries the merged AST
//     fields and the request they belong to, so a runtime can forward the
//     client's sub-selection to another service.
//   - source is the parent object value (nil for root fields); args holds
//     already-coerced argument values.
//
// Partial success and determinism
//   - BatchResolveAsync must return one AsyncResolveResult per task, in task
//     order. Each result is independent.
//   - Tasks whose response paths were nullified are filtered out before the
//     batch is handed over.
type Runtime interface {
	// ResolveSync resolves a synchronous field value immediately.
	// Return (nil, nil) to produce a GraphQL null for nullable fields.
	ResolveSync(ctx context.Context, info FieldInfo, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves one execution depth of async field tasks.
	// Requirements:
	// - Return len(results) == len(tasks).
	// - results[i] corresponds to tasks[i].
	// - Return independent errors per element without failing the whole batch.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType determines the concrete runtime type name for a value of an
	// abstract GraphQL type (interface or union). The name must be a possible
	// type of abstractType.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue serializes a scalar or enum value to a JSON-safe Go
	// value. Enums serialize to their symbolic name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// Request is the per-operation context shared by every field of one execution.
type Request struct {
	Document  *language.QueryDocument
	Operation *language.OperationDefinition
	// Variables are the coerced variable values of the operation.
	Variables map[string]any
}

// FieldInfo describes one field occurrence in the response.
type FieldInfo struct {
	// ObjectType is the parent GraphQL object type name.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// ResponseName is the alias, or the field name when unaliased.
	ResponseName string
	// Definition is the schema field being resolved.
	Definition *schema.Field
	// Fields are the AST fields merged under ResponseName.
	Fields []*language.Field
	Path   Path
	// Request is shared; callers must not modify it.
	Request *Request
}

// SubSelection returns the merged selection set of the field occurrence.
func (i FieldInfo) SubSelection() language.SelectionSet {
	return mergeSelectionSets(i.Fields)
}

type AsyncResolveTask struct {
	FieldInfo
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
}

type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	// Error contains a failure specific to this element; other elements in the
	// same batch are unaffected.
	Error error
	// Errors were reported for parts of Value, e.g. by the service that
	// produced it. They are recorded next to Value, not instead of it.
	Errors []FieldError
}

// FieldError is an error located below a resolved field. Path is relative
// to the field; an empty Path locates the field itself.
type FieldError struct {
	Message    string
	Path       Path
	Extensions map[string]any
}
