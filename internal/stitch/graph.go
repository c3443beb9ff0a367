// Package stitch merges remote service schemas into one graph and resolves
// the fields that cross service boundaries.
//
// Build unions the type systems of all registered services, adds the fields
// of the extension document, and attaches exactly one Binding to each of
// them. The resulting Graph is validated once and read-only afterwards.
//
// At request time Runtime answers the graph for the executor: root fields are
// forwarded to the service that owns them, fields of forwarded objects are
// read from the returned data, and extension fields delegate a sub-query to
// their binding's service using values fetched through the binding's fragment.
package stitch

import (
	"fmt"
	"slices"
	"sort"

	extension "github.com/hanpama/stitchgraph/internal/extension"
	language "github.com/hanpama/stitchgraph/internal/language"
	"github.com/hanpama/stitchgraph/internal/remote"
	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// Graph is the merged schema together with the ownership of its root fields
// and the bindings of its extension fields.
type Graph struct {
	Schema *schema.Schema

	services []*remote.Descriptor
	byName   map[string]*remote.Descriptor
	owners   map[language.Operation]map[string]*remote.Descriptor
	bindings map[string]*Binding
}

// Services returns the descriptors in registration order.
func (g *Graph) Services() []*remote.Descriptor { return g.services }

// Service returns the descriptor named name, or nil.
func (g *Graph) Service(name string) *remote.Descriptor { return g.byName[name] }

// Binding returns the binding of an extension field, or nil for base fields.
func (g *Graph) Binding(typeName, field string) *Binding {
	return g.bindings[typeName+"."+field]
}

// Bindings returns every binding ordered by coordinate.
func (g *Graph) Bindings() []*Binding {
	out := make([]*Binding, 0, len(g.bindings))
	for _, b := range g.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Field < out[j].Field
	})
	return out
}

// Owner returns the service answering a root field of op, or nil.
func (g *Graph) Owner(op language.Operation, field string) *remote.Descriptor {
	return g.owners[op][field]
}

// Build merges descriptors and extensions into a Graph. Every extension needs
// a binding in bindings and every binding an extension. Descriptors are not
// modified.
func Build(descriptors []*remote.Descriptor, extensions []extension.Definition, bindings BindingSet) (*Graph, error) {
	g := &Graph{
		Schema:   schema.NewSchemaWithBuiltins(""),
		byName:   make(map[string]*remote.Descriptor, len(descriptors)),
		owners:   map[language.Operation]map[string]*remote.Descriptor{language.Query: {}, language.Mutation: {}},
		bindings: make(map[string]*Binding, len(extensions)),
	}
	g.Schema.SetQueryType("Query")
	g.Schema.AddType(schema.NewType("Query", schema.TypeKindObject, ""))

	origin := make(map[string]string)
	for _, d := range descriptors {
		if g.byName[d.Name] != nil {
			return nil, fmt.Errorf("stitch: service %q registered twice", d.Name)
		}
		g.byName[d.Name] = d
		g.services = append(g.services, d)
		if err := g.merge(d, origin); err != nil {
			return nil, err
		}
	}

	if err := g.extend(extensions, bindings); err != nil {
		return nil, err
	}
	if err := checkReferences(g.Schema); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) merge(d *remote.Descriptor, origin map[string]string) error {
	names := make([]string, 0, len(d.Schema.Types))
	for name := range d.Schema.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := d.Schema.Types[name]
		if schema.IsBuiltinScalar(name) || schema.IsIntrospectionName(name) {
			continue
		}
		switch name {
		case d.Schema.QueryType:
			if err := g.mergeRoot(d, t, language.Query); err != nil {
				return err
			}
			continue
		case d.Schema.MutationType:
			if err := g.mergeRoot(d, t, language.Mutation); err != nil {
				return err
			}
			continue
		case d.Schema.SubscriptionType:
			// subscriptions are not stitched
			continue
		}
		if g.Schema.IsRootType(name) || name == "Mutation" {
			return &TypeNameConflictError{Type: name, Services: []string{d.Name}}
		}

		prev, seen := origin[name]
		if !seen {
			origin[name] = d.Name
			g.Schema.AddType(t.Clone())
			continue
		}
		merged := g.Schema.Types[name]
		if schema.Signature(merged) != schema.Signature(t) {
			return &TypeNameConflictError{Type: name, Services: []string{prev, d.Name}}
		}
		if t.Kind == schema.TypeKindInterface {
			for _, p := range t.PossibleTypes {
				if !contains(merged.PossibleTypes, p) {
					merged.AddPossibleType(p)
				}
			}
		}
	}

	for name, dir := range d.Schema.Directives {
		if schema.IsBuiltinDirective(name) || g.Schema.Directives[name] != nil {
			continue
		}
		g.Schema.AddDirective(dir)
	}
	return nil
}

func (g *Graph) mergeRoot(d *remote.Descriptor, t *schema.Type, op language.Operation) error {
	root := g.Schema.GetQueryType()
	if op == language.Mutation {
		if g.Schema.MutationType == "" {
			g.Schema.SetMutationType("Mutation")
			g.Schema.AddType(schema.NewType("Mutation", schema.TypeKindObject, ""))
		}
		root = g.Schema.GetMutationType()
	}
	for _, f := range t.Fields {
		if schema.IsIntrospectionName(f.Name) {
			continue
		}
		if owner := g.owners[op][f.Name]; owner != nil {
			return &TypeNameConflictError{Type: root.Name, Field: f.Name, Services: []string{owner.Name, d.Name}}
		}
		fc := *f
		fc.SetAsync(true)
		root.AddField(&fc)
		g.owners[op][f.Name] = d
	}
	return nil
}

func (g *Graph) extend(extensions []extension.Definition, bindings BindingSet) error {
	specs := make(map[string]BindingSpec, len(bindings))
	for _, s := range bindings {
		if _, dup := specs[s.coordinate()]; dup {
			return &InvalidBindingError{Type: s.Type, Field: s.Field, Reason: "bound more than once"}
		}
		specs[s.coordinate()] = s
	}
	extended := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		if extended[ext.Coordinate()] {
			return &InvalidBindingError{Type: ext.OwnerType, Field: ext.FieldName, Reason: "extended more than once"}
		}
		extended[ext.Coordinate()] = true
	}

	for _, ext := range extensions {
		invalid := func(format string, args ...any) error {
			return &InvalidBindingError{Type: ext.OwnerType, Field: ext.FieldName, Reason: fmt.Sprintf(format, args...)}
		}

		owner := g.Schema.Types[ext.OwnerType]
		switch {
		case owner == nil:
			return invalid("type %s is not defined by any service", ext.OwnerType)
		case owner.Kind != schema.TypeKindObject:
			return invalid("%s is an %s, only object types can be extended", ext.OwnerType, owner.Kind)
		case g.Schema.IsRootType(owner.Name):
			return invalid("root types cannot be extended")
		case owner.Field(ext.FieldName) != nil:
			return invalid("%s already defines %s", ext.OwnerType, ext.FieldName)
		}
		if rt := g.Schema.Types[ext.ReturnTypeName()]; rt == nil || rt.Kind == schema.TypeKindInputObject {
			return invalid("return type %s is not an output type of any service", ext.ReturnTypeName())
		}
		for _, a := range ext.Arguments {
			at := g.Schema.Types[a.Type.GetNamedType()]
			if at == nil || !(at.IsLeaf() || at.Kind == schema.TypeKindInputObject) {
				return invalid("argument %s has no input type %s", a.Name, a.Type.GetNamedType())
			}
		}

		spec, ok := specs[ext.Coordinate()]
		if !ok {
			return &UnresolvedOwnerError{Type: ext.OwnerType, Field: ext.FieldName}
		}
		svc := g.byName[spec.Service]
		if svc == nil {
			return &UnresolvedOwnerError{Type: ext.OwnerType, Field: ext.FieldName, Service: spec.Service}
		}

		if len(spec.Fragment) == 0 {
			return invalid("binding requires no fragment fields")
		}
		for _, name := range spec.Fragment {
			f := owner.Field(name)
			if f == nil {
				return invalid("fragment field %s is not defined on %s", name, owner.Name)
			}
			if extended[owner.Name+"."+name] {
				return invalid("fragment field %s is itself an extension field", name)
			}
			if ft := g.Schema.Types[f.Type.GetNamedType()]; ft == nil || !ft.IsLeaf() {
				return invalid("fragment field %s is not a scalar or enum", name)
			}
			for _, a := range f.Arguments {
				if a.Type.IsNonNull() && a.DefaultValue == nil {
					return invalid("fragment field %s takes required argument %s", name, a.Name)
				}
			}
		}

		var target *schema.Field
		if root := svc.Schema.GetQueryType(); root != nil {
			target = root.Field(spec.Operation)
		}
		if target == nil {
			return invalid("service %s has no query field %q", svc.Name, spec.Operation)
		}
		if !compatible(ext.ReturnType, target.Type) {
			return invalid("returns %s but %s.%s returns %s", ext.ReturnType, svc.Name, spec.Operation, target.Type)
		}
		for _, a := range ext.Arguments {
			if target.Argument(a.Name) == nil {
				return invalid("argument %s is not accepted by %s.%s", a.Name, svc.Name, spec.Operation)
			}
		}
		mapping, supplied, err := checkArguments(spec, target)
		if err != nil {
			return invalid("%v", err)
		}
		for _, a := range target.Arguments {
			if a.Type.IsNonNull() && a.DefaultValue == nil && !supplied[a.Name] && !hasArgument(ext.Arguments, a.Name) {
				return invalid("no argument mapping supplies required argument %s of %s.%s", a.Name, svc.Name, spec.Operation)
			}
		}

		f := ext.Field()
		f.SetAsync(true)
		owner.AddField(f)
		g.bindings[ext.Coordinate()] = &Binding{
			Type:      ext.OwnerType,
			Field:     ext.FieldName,
			Service:   svc,
			Fragment:  append([]string(nil), spec.Fragment...),
			Operation: spec.Operation,
			Arguments: mapping,
			Extension: ext,
			target:    target,
			graph:     g,
		}
	}

	for _, s := range bindings {
		if !extended[s.coordinate()] {
			return &InvalidBindingError{Type: s.Type, Field: s.Field, Reason: "no extension declares this field"}
		}
	}
	return nil
}

// compatible reports whether values of target can be served as ext: the
// same named type and list nesting, with ext at most as strict about nulls.
func compatible(ext, target *schema.TypeRef) bool {
	if ext == nil || target == nil {
		return false
	}
	if ext.IsNonNull() {
		return target.IsNonNull() && compatible(ext.OfType, target.OfType)
	}
	if target.IsNonNull() {
		target = target.OfType
	}
	switch ext.Kind {
	case schema.TypeRefKindList:
		return target.Kind == schema.TypeRefKindList && compatible(ext.OfType, target.OfType)
	case schema.TypeRefKindNamed:
		return target.Kind == schema.TypeRefKindNamed && target.Named == ext.Named
	}
	return false
}

// checkReferences makes sure every type the merged schema mentions exists.
func checkReferences(s *schema.Schema) error {
	missing := func(ref *schema.TypeRef) bool { return s.Types[ref.GetNamedType()] == nil }
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := s.Types[name]
		for _, f := range t.Fields {
			if missing(f.Type) {
				return fmt.Errorf("stitch: %s.%s refers to unknown type %s", name, f.Name, f.Type.GetNamedType())
			}
			for _, a := range f.Arguments {
				if missing(a.Type) {
					return fmt.Errorf("stitch: %s.%s(%s) refers to unknown type %s", name, f.Name, a.Name, a.Type.GetNamedType())
				}
			}
		}
		for _, in := range t.InputFields {
			if missing(in.Type) {
				return fmt.Errorf("stitch: %s.%s refers to unknown type %s", name, in.Name, in.Type.GetNamedType())
			}
		}
		for _, ref := range append(append([]string(nil), t.Interfaces...), t.PossibleTypes...) {
			if s.Types[ref] == nil {
				return fmt.Errorf("stitch: %s refers to unknown type %s", name, ref)
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// checkArguments returns the mapping of spec and the target arguments it
// sets. A custom mapping is pure, so one call on placeholder values shows
// which arguments it sets.
func checkArguments(spec BindingSpec, target *schema.Field) (ArgumentMapping, map[string]bool, error) {
	supplied := make(map[string]bool)
	switch {
	case spec.ArgumentMap != nil && spec.Arguments != nil:
		return nil, nil, fmt.Errorf("both an argument map and a custom argument mapping are given")
	case spec.ArgumentMap != nil:
		for _, name := range sortedKeys(spec.ArgumentMap) {
			source := spec.ArgumentMap[name]
			if !slices.Contains(spec.Fragment, source) {
				return nil, nil, fmt.Errorf("argument %s is mapped from %s, which is not a fragment field", name, source)
			}
			if target.Argument(name) == nil {
				return nil, nil, fmt.Errorf("argument mapping sets %s, which %s does not accept", name, target.Name)
			}
			supplied[name] = true
		}
		return MapArguments(spec.ArgumentMap), supplied, nil
	case spec.Arguments != nil:
		sample := make(map[string]any, len(spec.Fragment))
		for _, name := range spec.Fragment {
			sample[name] = name
		}
		out := spec.Arguments(sample)
		for _, name := range sortedKeys(out) {
			if target.Argument(name) == nil {
				return nil, nil, fmt.Errorf("argument mapping sets %s, which %s does not accept", name, target.Name)
			}
			if out[name] != nil {
				supplied[name] = true
			}
		}
	}
	return spec.Arguments, supplied, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hasArgument(args []*schema.InputValue, name string) bool {
	for _, a := range args {
		if a.Name == name {
			return true
		}
	}
	return false
}
