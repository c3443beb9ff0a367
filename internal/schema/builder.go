package schema

import (
	"sort"

	language "github.com/hanpama/stitchgraph/internal/language"
)

// BuildFromAST converts a validated gqlparser schema into a Schema.
// Introspection types are left out and builtin scalars/directives are shared.
// Every field is built synchronous; callers decide which fields resolve remotely.
func BuildFromAST(src *language.Schema) (*Schema, error) {
	s := NewSchemaWithBuiltins("")
	if src.Query != nil {
		s.SetQueryType(src.Query.Name)
	}
	if src.Mutation != nil {
		s.SetMutationType(src.Mutation.Name)
	}
	if src.Subscription != nil {
		s.SetSubscriptionType(src.Subscription.Name)
	}

	for name, def := range src.Types {
		if IsIntrospectionName(name) || IsBuiltinScalar(name) {
			continue
		}
		switch def.Kind {
		case language.Object:
			s.AddType(buildObject(def, TypeKindObject))
		case language.Interface:
			s.AddType(buildObject(def, TypeKindInterface))
		case language.Union:
			t := NewType(def.Name, TypeKindUnion, def.Description)
			for _, name := range def.Types {
				t.AddPossibleType(name)
			}
			s.AddType(t)
		case language.Enum:
			t := NewType(def.Name, TypeKindEnum, def.Description)
			for _, v := range def.EnumValues {
				ev := NewEnumValue(v.Name, v.Description)
				if reason, ok := deprecation(v.Directives); ok {
					ev.Deprecate(reason)
				}
				t.AddEnumValue(ev)
			}
			s.AddType(t)
		case language.InputObject:
			t := NewType(def.Name, TypeKindInputObject, def.Description).
				SetOneOf(def.Directives.ForName("oneOf") != nil)
			for _, f := range def.Fields {
				t.AddInputField(buildInputValue(f.Name, f.Description, f.Type, f.DefaultValue, f.Directives))
			}
			s.AddType(t)
		case language.Scalar:
			t := NewType(def.Name, TypeKindScalar, def.Description)
			if d := def.Directives.ForName("specifiedBy"); d != nil {
				if url := d.Arguments.ForName("url"); url != nil && url.Value != nil {
					t.SetSpecifiedByURL(url.Value.Raw)
				}
			}
			s.AddType(t)
		}
	}

	// Interfaces list their implementations so abstract completion can be checked.
	objects := make([]string, 0, len(s.Types))
	for name := range s.Types {
		objects = append(objects, name)
	}
	sort.Strings(objects)
	for _, name := range objects {
		t := s.Types[name]
		if t.Kind != TypeKindObject {
			continue
		}
		for _, iface := range t.Interfaces {
			if it := s.Types[iface]; it != nil && it.Kind == TypeKindInterface {
				it.AddPossibleType(t.Name)
			}
		}
	}

	for name, dir := range src.Directives {
		if IsBuiltinDirective(name) {
			continue
		}
		d := NewDirective(dir.Name, dir.Description).SetRepeatable(dir.IsRepeatable)
		for _, loc := range dir.Locations {
			d.Locations = append(d.Locations, string(loc))
		}
		for _, a := range dir.Arguments {
			d.AddArgument(buildInputValue(a.Name, a.Description, a.Type, a.DefaultValue, a.Directives))
		}
		s.AddDirective(d)
	}
	return s, nil
}

func buildObject(def *language.Definition, kind TypeKind) *Type {
	t := NewType(def.Name, kind, def.Description)
	for _, name := range def.Interfaces {
		t.AddInterface(name)
	}
	for _, fd := range def.Fields {
		if IsIntrospectionName(fd.Name) {
			continue
		}
		f := NewField(fd.Name, fd.Description, TypeRefFromAST(fd.Type))
		if reason, ok := deprecation(fd.Directives); ok {
			f.Deprecate(reason)
		}
		for _, a := range fd.Arguments {
			f.AddArgument(buildInputValue(a.Name, a.Description, a.Type, a.DefaultValue, a.Directives))
		}
		t.AddField(f)
	}
	return t
}

func buildInputValue(name, description string, typ *language.Type, def *language.Value, dirs language.DirectiveList) *InputValue {
	in := NewInputValue(name, description, TypeRefFromAST(typ))
	if def != nil {
		in.SetDefault(Literal(def.String()))
	}
	if reason, ok := deprecation(dirs); ok {
		in.Deprecate(reason)
	}
	return in
}

func deprecation(dirs language.DirectiveList) (string, bool) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if reason := d.Arguments.ForName("reason"); reason != nil && reason.Value != nil {
		return reason.Value.Raw, true
	}
	return "No longer supported", true
}

// TypeRefFromAST converts a gqlparser type expression.
func TypeRefFromAST(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return NonNullType(TypeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return NamedType(t.NamedType)
	}
	if t.Elem != nil {
		return ListType(TypeRefFromAST(t.Elem))
	}
	return nil
}

// TypeRefToAST converts a reference back into a gqlparser type expression.
func TypeRefToAST(t *TypeRef) *language.Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TypeRefKindNonNull:
		inner := TypeRefToAST(t.OfType)
		inner.NonNull = true
		return inner
	case TypeRefKindList:
		return &language.Type{Elem: TypeRefToAST(t.OfType)}
	default:
		return &language.Type{NamedType: t.Named}
	}
}

// BuildFromSDL parses SDL string and returns the corresponding Schema.
func BuildFromSDL(sdl string) (*Schema, error) {
	src, err := language.LoadSchema("schema.graphql", sdl)
	if err != nil {
		return nil, err
	}
	return BuildFromAST(src)
}
