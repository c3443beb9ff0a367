package stitch

import (
	"context"
	"fmt"

	executor "github.com/hanpama/stitchgraph/internal/executor"
	extension "github.com/hanpama/stitchgraph/internal/extension"
	language "github.com/hanpama/stitchgraph/internal/language"
	"github.com/hanpama/stitchgraph/internal/remote"
	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// FragmentKey is the response key a required fragment field is fetched
// under, next to whatever the caller selected.
func FragmentKey(field string) string { return remote.ArgumentVariablePrefix + field }

// TypenameKey carries the concrete type of abstract values.
var TypenameKey = FragmentKey("__typename")

// ArgumentMapping derives the target field's arguments from the required
// fragment of a parent. It must be pure: equal fragments give equal arguments.
type ArgumentMapping func(fragment map[string]any) map[string]any

// ArgumentMap maps target argument names to the fragment fields they are
// copied from.
type ArgumentMap map[string]string

// MapArguments returns a mapping that copies fragment fields into target
// arguments, keyed by target argument name.
func MapArguments(targetToFragment ArgumentMap) ArgumentMapping {
	m := make(map[string]string, len(targetToFragment))
	for k, v := range targetToFragment {
		m[k] = v
	}
	return func(fragment map[string]any) map[string]any {
		out := make(map[string]any, len(m))
		for target, field := range m {
			out[target] = fragment[field]
		}
		return out
	}
}

// BindingSpec says which service answers an extension field and how.
type BindingSpec struct {
	Type  string
	Field string
	// Service is the name of the owning service.
	Service string
	// Fragment lists the scalar fields of Type the delegation needs.
	Fragment []string
	// Operation is the query root field of Service to delegate to.
	Operation string
	// ArgumentMap is checked against Fragment and the target field by Build.
	ArgumentMap ArgumentMap
	// Arguments is a custom mapping used instead of ArgumentMap. Build tries
	// it once on placeholder values of the fragment fields.
	Arguments ArgumentMapping
}

func (s BindingSpec) coordinate() string { return s.Type + "." + s.Field }

// BindingSet is the registry of bindings handed to Build.
type BindingSet []BindingSpec

// Fragment is a parsed required-fragment declaration.
type Fragment struct {
	// On is the type condition, empty for the bare `{ id }` form.
	On     string
	Fields []string
}

// ParseFragment parses `{ id }` or `fragment UserFragment on User { id }`.
// Only plain field selections are allowed.
func ParseFragment(text string) (Fragment, error) {
	doc, err := language.ParseQuery(text)
	if err != nil {
		return Fragment{}, fmt.Errorf("fragment %q: %w", text, err)
	}
	var frag Fragment
	var set language.SelectionSet
	switch {
	case len(doc.Operations) == 1 && len(doc.Fragments) == 0:
		set = doc.Operations[0].SelectionSet
	case len(doc.Operations) == 0 && len(doc.Fragments) == 1:
		frag.On = doc.Fragments[0].TypeCondition
		set = doc.Fragments[0].SelectionSet
	default:
		return Fragment{}, fmt.Errorf("fragment %q: expected one selection set or one fragment", text)
	}
	for _, sel := range set {
		f, ok := sel.(*language.Field)
		if !ok || f.Alias != f.Name || len(f.Arguments) > 0 || len(f.Directives) > 0 || len(f.SelectionSet) > 0 {
			return Fragment{}, fmt.Errorf("fragment %q: only plain scalar fields can be required", text)
		}
		frag.Fields = append(frag.Fields, f.Name)
	}
	return frag, nil
}

// Binding is the resolver of one extension field. It is immutable.
type Binding struct {
	Type      string
	Field     string
	Service   *remote.Descriptor
	Fragment  []string
	Operation string
	Arguments ArgumentMapping
	Extension extension.Definition

	target *schema.Field
	graph  *Graph
}

// Capability is what a Binding may do while resolving: read its required
// fragment and delegate to its owning service.
type Capability struct {
	binding  *Binding
	dispatch func(ctx context.Context, d *remote.Descriptor, q *remote.DelegatedQuery) (remote.Result, error)
}

// NewCapability returns a capability that delegates without batching.
func NewCapability(b *Binding) *Capability {
	return &Capability{binding: b, dispatch: func(ctx context.Context, d *remote.Descriptor, q *remote.DelegatedQuery) (remote.Result, error) {
		return d.Delegate(ctx, q)
	}}
}

// Fragment extracts the required fragment fields from parent.
func (c *Capability) Fragment(parent any) (map[string]any, error) {
	b := c.binding
	m, ok := parent.(map[string]any)
	if !ok {
		return nil, &FragmentResolutionError{Type: b.Type, Field: b.Field, Missing: b.Fragment}
	}
	out := make(map[string]any, len(b.Fragment))
	var missing []string
	for _, f := range b.Fragment {
		v, ok := m[FragmentKey(f)]
		if !ok {
			missing = append(missing, f)
			continue
		}
		out[f] = v
	}
	if len(missing) > 0 {
		return nil, &FragmentResolutionError{Type: b.Type, Field: b.Field, Missing: missing}
	}
	return out, nil
}

// Delegate sends q to the binding's owning service.
func (c *Capability) Delegate(ctx context.Context, q *remote.DelegatedQuery) (remote.Result, error) {
	return c.dispatch(ctx, c.binding.Service, q)
}

// Resolve answers the extension field for parent. A parent whose fragment
// holds a null has nothing to relate to and resolves to null.
func (b *Binding) Resolve(ctx context.Context, parent any, args map[string]any, info executor.FieldInfo, c *Capability) (remote.Result, error) {
	frag, err := c.Fragment(parent)
	if err != nil {
		return remote.Result{}, err
	}
	for _, v := range frag {
		if v == nil {
			return remote.Result{}, nil
		}
	}
	q := b.graph.delegatedQuery(language.Query, b.Operation, b.TargetArguments(frag, args), info)
	return c.Delegate(ctx, q)
}

// TargetArguments computes the arguments of the target field. Caller
// arguments of the extension field fill in what the mapping left unset.
func (b *Binding) TargetArguments(fragment, args map[string]any) map[string]any {
	out := make(map[string]any)
	if b.Arguments != nil {
		for k, v := range b.Arguments(fragment) {
			out[k] = v
		}
	}
	for k, v := range args {
		if _, set := out[k]; !set && b.target.Argument(k) != nil {
			out[k] = v
		}
	}
	return out
}
