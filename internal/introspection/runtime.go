// Package introspection answers __schema and __type for an executable schema.
//
// Wrap puts a runtime in front of another one: fields of the introspection
// types are resolved from the wrapped schema, everything else is passed on.
// Types and directives are listed by name; fields, arguments, input fields
// and enum values keep their declaration order.
package introspection

import (
	"context"
	"sort"

	executor "github.com/hanpama/stitchgraph/internal/executor"
	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// IntrospectionWrapper holds both the runtime and extended schema
type IntrospectionWrapper struct {
	Runtime executor.Runtime
	Schema  *schema.Schema
}

// Wrap returns a Runtime that handles GraphQL introspection fields.
// sch is not modified; the returned Schema is a copy extended with the
// introspection types and root fields.
func Wrap(base executor.Runtime, sch *schema.Schema) *IntrospectionWrapper {
	r := &runtime{base: base, schema: sch, tables: newTables(sch)}
	return &IntrospectionWrapper{Runtime: r, Schema: extendSchemaWithIntrospection(sch)}
}

type runtime struct {
	base   executor.Runtime
	schema *schema.Schema // the schema being described
	tables *tables
}

var _ executor.Runtime = (*runtime)(nil)

func (r *runtime) ResolveSync(ctx context.Context, info executor.FieldInfo, source any, args map[string]any) (any, error) {
	if v, ok := r.tables.resolve(source, info.Field, args); ok {
		return v, nil
	}
	if info.ObjectType == r.schema.QueryType {
		switch info.Field {
		case "__schema":
			return r.schema, nil
		case "__type":
			name, _ := args["name"].(string)
			if t := r.schema.Types[name]; t != nil {
				return t, nil
			}
			return nil, nil
		}
	}
	return r.base.ResolveSync(ctx, info, source, args)
}

func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return r.base.ResolveType(ctx, abstractType, value)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	return r.base.SerializeLeafValue(ctx, typ, value)
}

type fieldFunc[T any] func(src T, args map[string]any) any

// tables maps each introspection type's field names to resolvers. Sources are
// the schema package's own values: *schema.Schema for __Schema, *schema.Type
// and *schema.TypeRef for __Type, and so on.
type tables struct {
	named      func(name string) *schema.Type
	schemas   map[string]fieldFunc[*schema.Schema]
	types      map[string]fieldFunc[*schema.Type]
	refs       map[string]fieldFunc[*schema.TypeRef]
	fields     map[string]fieldFunc[*schema.Field]
	inputs     map[string]fieldFunc[*schema.InputValue]
	enumValues map[string]fieldFunc[*schema.EnumValue]
	directives map[string]fieldFunc[*schema.Directive]
}

func lookup[T any](table map[string]fieldFunc[T], src T, field string, args map[string]any) (any, bool) {
	f, ok := table[field]
	if !ok {
		return nil, false
	}
	return f(src, args), true
}

func (t *tables) resolve(source any, field string, args map[string]any) (any, bool) {
	switch src := source.(type) {
	case *schema.Schema:
		return lookup(t.schemas, src, field, args)
	case *schema.Type:
		return lookup(t.types, src, field, args)
	case *schema.TypeRef:
		if f, ok := t.refs[field]; ok {
			return f(src, args), true
		}
		// a named reference answers like the type it names
		if src.Kind == schema.TypeRefKindNamed {
			if def := t.named(src.Named); def != nil {
				return lookup(t.types, def, field, args)
			}
			return nil, true
		}
		return nil, true
	case *schema.Field:
		return lookup(t.fields, src, field, args)
	case *schema.InputValue:
		return lookup(t.inputs, src, field, args)
	case *schema.EnumValue:
		return lookup(t.enumValues, src, field, args)
	case *schema.Directive:
		return lookup(t.directives, src, field, args)
	}
	return nil, false
}

func newTables(sch *schema.Schema) *tables {
	t := &tables{}
	t.named = func(name string) *schema.Type { return sch.Types[name] }
	t.schemas = map[string]fieldFunc[*schema.Schema]{
		"description":      func(s *schema.Schema, _ map[string]any) any { return s.Description },
		"queryType":        func(s *schema.Schema, _ map[string]any) any { return s.GetQueryType() },
		"mutationType":     func(s *schema.Schema, _ map[string]any) any { return s.GetMutationType() },
		"subscriptionType": func(s *schema.Schema, _ map[string]any) any { return s.GetSubscriptionType() },
		"types": func(s *schema.Schema, _ map[string]any) any {
			out := make([]*schema.Type, 0, len(s.Types))
			for _, typ := range s.Types {
				out = append(out, typ)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
			return out
		},
		"directives": func(s *schema.Schema, _ map[string]any) any {
			out := make([]*schema.Directive, 0, len(s.Directives))
			for _, d := range s.Directives {
				out = append(out, d)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
			return out
		},
	}
	t.types = map[string]fieldFunc[*schema.Type]{
		"kind":           func(typ *schema.Type, _ map[string]any) any { return string(typ.Kind) },
		"name":           func(typ *schema.Type, _ map[string]any) any { return typ.Name },
		"description":    func(typ *schema.Type, _ map[string]any) any { return typ.Description },
		"specifiedByURL": func(typ *schema.Type, _ map[string]any) any { return typ.SpecifiedByURL },
		"isOneOf":        func(typ *schema.Type, _ map[string]any) any { return typ.OneOf },
		// named types never wrap another type
		"ofType": func(*schema.Type, map[string]any) any { return nil },
		"fields": func(typ *schema.Type, args map[string]any) any {
			if typ.Kind != schema.TypeKindObject && typ.Kind != schema.TypeKindInterface {
				return nil
			}
			return visible(typ.Fields, args, func(f *schema.Field) bool { return f.IsDeprecated })
		},
		"interfaces": func(typ *schema.Type, _ map[string]any) any {
			if typ.Kind != schema.TypeKindObject && typ.Kind != schema.TypeKindInterface {
				return nil
			}
			return t.lookupAll(typ.Interfaces)
		},
		"possibleTypes": func(typ *schema.Type, _ map[string]any) any {
			if !typ.IsAbstract() {
				return nil
			}
			return t.lookupAll(typ.PossibleTypes)
		},
		"enumValues": func(typ *schema.Type, args map[string]any) any {
			if typ.Kind != schema.TypeKindEnum {
				return nil
			}
			return visible(typ.EnumValues, args, func(v *schema.EnumValue) bool { return v.IsDeprecated })
		},
		"inputFields": func(typ *schema.Type, args map[string]any) any {
			if typ.Kind != schema.TypeKindInputObject {
				return nil
			}
			return visible(typ.InputFields, args, func(v *schema.InputValue) bool { return v.IsDeprecated })
		},
	}
	t.refs = map[string]fieldFunc[*schema.TypeRef]{
		"kind": func(ref *schema.TypeRef, _ map[string]any) any {
			if ref.Kind != schema.TypeRefKindNamed {
				return string(ref.Kind)
			}
			if def := t.named(ref.Named); def != nil {
				return string(def.Kind)
			}
			return nil
		},
		"name": func(ref *schema.TypeRef, _ map[string]any) any {
			if ref.Kind != schema.TypeRefKindNamed {
				return nil
			}
			return ref.Named
		},
		"ofType": func(ref *schema.TypeRef, _ map[string]any) any {
			if ref.Kind == schema.TypeRefKindNamed {
				return nil
			}
			return ref.OfType
		},
	}
	t.fields = map[string]fieldFunc[*schema.Field]{
		"name":              func(f *schema.Field, _ map[string]any) any { return f.Name },
		"description":       func(f *schema.Field, _ map[string]any) any { return f.Description },
		"type":              func(f *schema.Field, _ map[string]any) any { return f.Type },
		"isDeprecated":      func(f *schema.Field, _ map[string]any) any { return f.IsDeprecated },
		"deprecationReason": func(f *schema.Field, _ map[string]any) any { return reason(f.IsDeprecated, f.DeprecationReason) },
		"args": func(f *schema.Field, args map[string]any) any {
			return visible(f.Arguments, args, func(v *schema.InputValue) bool { return v.IsDeprecated })
		},
	}
	t.inputs = map[string]fieldFunc[*schema.InputValue]{
		"name":              func(v *schema.InputValue, _ map[string]any) any { return v.Name },
		"description":       func(v *schema.InputValue, _ map[string]any) any { return v.Description },
		"type":              func(v *schema.InputValue, _ map[string]any) any { return v.Type },
		"isDeprecated":      func(v *schema.InputValue, _ map[string]any) any { return v.IsDeprecated },
		"deprecationReason": func(v *schema.InputValue, _ map[string]any) any { return reason(v.IsDeprecated, v.DeprecationReason) },
		"defaultValue": func(v *schema.InputValue, _ map[string]any) any {
			if v.DefaultValue == nil {
				return nil
			}
			s := schema.FormatValue(v.DefaultValue)
			return &s
		},
	}
	t.enumValues = map[string]fieldFunc[*schema.EnumValue]{
		"name":              func(v *schema.EnumValue, _ map[string]any) any { return v.Name },
		"description":       func(v *schema.EnumValue, _ map[string]any) any { return v.Description },
		"isDeprecated":      func(v *schema.EnumValue, _ map[string]any) any { return v.IsDeprecated },
		"deprecationReason": func(v *schema.EnumValue, _ map[string]any) any { return reason(v.IsDeprecated, v.DeprecationReason) },
	}
	t.directives = map[string]fieldFunc[*schema.Directive]{
		"name":         func(d *schema.Directive, _ map[string]any) any { return d.Name },
		"description":  func(d *schema.Directive, _ map[string]any) any { return d.Description },
		"isRepeatable": func(d *schema.Directive, _ map[string]any) any { return d.IsRepeatable },
		"locations": func(d *schema.Directive, _ map[string]any) any {
			locs := make([]string, len(d.Locations))
			for i, l := range d.Locations {
				locs[i] = string(l)
			}
			return locs
		},
		"args": func(d *schema.Directive, args map[string]any) any {
			return visible(d.Arguments, args, func(v *schema.InputValue) bool { return v.IsDeprecated })
		},
	}
	return t
}

// lookupAll resolves type names, skipping unknown ones.
func (t *tables) lookupAll(names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if def := t.named(name); def != nil {
			out = append(out, def)
		}
	}
	return out
}

// visible drops deprecated items unless includeDeprecated is true.
func visible[T any](items []T, args map[string]any, deprecated func(T) bool) []T {
	include, _ := args["includeDeprecated"].(bool)
	out := make([]T, 0, len(items))
	for _, it := range items {
		if include || !deprecated(it) {
			out = append(out, it)
		}
	}
	return out
}

func reason(deprecated bool, r string) *string {
	if !deprecated {
		return nil
	}
	return &r
}
