package remote

import (
	"encoding/json"
	"fmt"

	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// IntrospectionQuery is the full introspection query sent to every service.
// It asks only for fields every spec-compliant server has offered since 2018.
const IntrospectionQuery = `query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types { ...FullType }
    directives {
      name
      description
      locations
      args { ...InputValue }
    }
  }
}

fragment FullType on __Type {
  kind
  name
  description
  fields(includeDeprecated: true) {
    name
    description
    args { ...InputValue }
    type { ...TypeRef }
    isDeprecated
    deprecationReason
  }
  inputFields { ...InputValue }
  interfaces { ...TypeRef }
  enumValues(includeDeprecated: true) {
    name
    description
    isDeprecated
    deprecationReason
  }
  possibleTypes { ...TypeRef }
}

fragment InputValue on __InputValue {
  name
  description
  type { ...TypeRef }
  defaultValue
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
        ofType {
          kind
          name
          ofType {
            kind
            name
            ofType {
              kind
              name
              ofType {
                kind
                name
              }
            }
          }
        }
      }
    }
  }
}
`

type introspectionData struct {
	Schema *introspectionSchema `json:"__schema"`
}

type introspectionSchema struct {
	QueryType        *namedRef   `json:"queryType"`
	MutationType     *namedRef   `json:"mutationType"`
	SubscriptionType *namedRef   `json:"subscriptionType"`
	Types            []fullType  `json:"types"`
	Directives       []directive `json:"directives"`
}

type namedRef struct {
	Name string `json:"name"`
}

type fullType struct {
	Kind          string       `json:"kind"`
	Name          string       `json:"name"`
	Description   *string      `json:"description"`
	Fields        []field      `json:"fields"`
	InputFields   []inputValue `json:"inputFields"`
	Interfaces    []typeRef    `json:"interfaces"`
	EnumValues    []enumValue  `json:"enumValues"`
	PossibleTypes []typeRef    `json:"possibleTypes"`
}

type field struct {
	Name              string       `json:"name"`
	Description       *string      `json:"description"`
	Args              []inputValue `json:"args"`
	Type              *typeRef     `json:"type"`
	IsDeprecated      bool         `json:"isDeprecated"`
	DeprecationReason *string      `json:"deprecationReason"`
}

type inputValue struct {
	Name         string   `json:"name"`
	Description  *string  `json:"description"`
	Type         *typeRef `json:"type"`
	DefaultValue *string  `json:"defaultValue"`
}

type typeRef struct {
	Kind   string   `json:"kind"`
	Name   *string  `json:"name"`
	OfType *typeRef `json:"ofType"`
}

type enumValue struct {
	Name              string  `json:"name"`
	Description       *string `json:"description"`
	IsDeprecated      bool    `json:"isDeprecated"`
	DeprecationReason *string `json:"deprecationReason"`
}

type directive struct {
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Locations   []string     `json:"locations"`
	Args        []inputValue `json:"args"`
}

// decodeIntrospection converts the data of an introspection response into a
// Schema. Introspection types and builtin scalars and directives are left out;
// types and fields keep the order the service reported them in.
func decodeIntrospection(data map[string]any) (*schema.Schema, error) {
	// data was decoded generically by the link; round-trip it into typed structs.
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var in introspectionData
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("malformed introspection result: %w", err)
	}
	if in.Schema == nil {
		return nil, fmt.Errorf("introspection result has no __schema")
	}
	if in.Schema.QueryType == nil || in.Schema.QueryType.Name == "" {
		return nil, fmt.Errorf("introspection result has no query type")
	}

	out := schema.NewSchemaWithBuiltins("")
	out.SetQueryType(in.Schema.QueryType.Name)
	if in.Schema.MutationType != nil {
		out.SetMutationType(in.Schema.MutationType.Name)
	}
	if in.Schema.SubscriptionType != nil {
		out.SetSubscriptionType(in.Schema.SubscriptionType.Name)
	}

	for _, ft := range in.Schema.Types {
		if ft.Name == "" {
			return nil, fmt.Errorf("introspection result has a type without a name")
		}
		if schema.IsIntrospectionName(ft.Name) || schema.IsBuiltinScalar(ft.Name) {
			continue
		}
		t, err := convertType(ft)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", ft.Name, err)
		}
		out.AddType(t)
	}

	for _, d := range in.Schema.Directives {
		if schema.IsBuiltinDirective(d.Name) {
			continue
		}
		sd := schema.NewDirective(d.Name, str(d.Description))
		sd.Locations = append(sd.Locations, d.Locations...)
		for _, a := range d.Args {
			iv, err := convertInputValue(a)
			if err != nil {
				return nil, fmt.Errorf("directive @%s: %w", d.Name, err)
			}
			sd.AddArgument(iv)
		}
		out.AddDirective(sd)
	}

	if out.GetQueryType() == nil {
		return nil, fmt.Errorf("query type %s is not among the reported types", out.QueryType)
	}
	return out, nil
}

func convertType(ft fullType) (*schema.Type, error) {
	kind := schema.TypeKind(ft.Kind)
	t := schema.NewType(ft.Name, kind, str(ft.Description))
	switch kind {
	case schema.TypeKindObject, schema.TypeKindInterface:
		for _, f := range ft.Fields {
			ref, err := convertTypeRef(f.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			sf := schema.NewField(f.Name, str(f.Description), ref)
			if f.IsDeprecated {
				sf.Deprecate(reason(f.DeprecationReason))
			}
			for _, a := range f.Args {
				iv, err := convertInputValue(a)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", f.Name, err)
				}
				sf.AddArgument(iv)
			}
			t.AddField(sf)
		}
		for _, i := range ft.Interfaces {
			t.AddInterface(refName(&i))
		}
		for _, p := range ft.PossibleTypes {
			t.AddPossibleType(refName(&p))
		}
	case schema.TypeKindUnion:
		for _, p := range ft.PossibleTypes {
			t.AddPossibleType(refName(&p))
		}
	case schema.TypeKindEnum:
		for _, v := range ft.EnumValues {
			ev := schema.NewEnumValue(v.Name, str(v.Description))
			if v.IsDeprecated {
				ev.Deprecate(reason(v.DeprecationReason))
			}
			t.AddEnumValue(ev)
		}
	case schema.TypeKindInputObject:
		for _, f := range ft.InputFields {
			iv, err := convertInputValue(f)
			if err != nil {
				return nil, fmt.Errorf("input field %s: %w", f.Name, err)
			}
			t.AddInputField(iv)
		}
	case schema.TypeKindScalar:
	default:
		return nil, fmt.Errorf("unknown kind %q", ft.Kind)
	}
	return t, nil
}

func convertInputValue(in inputValue) (*schema.InputValue, error) {
	ref, err := convertTypeRef(in.Type)
	if err != nil {
		return nil, fmt.Errorf("argument %s: %w", in.Name, err)
	}
	iv := schema.NewInputValue(in.Name, str(in.Description), ref)
	if in.DefaultValue != nil {
		iv.SetDefault(schema.Literal(*in.DefaultValue))
	}
	return iv, nil
}

func convertTypeRef(ref *typeRef) (*schema.TypeRef, error) {
	if ref == nil {
		return nil, fmt.Errorf("missing type reference")
	}
	switch ref.Kind {
	case "NON_NULL":
		inner, err := convertTypeRef(ref.OfType)
		if err != nil {
			return nil, err
		}
		return schema.NonNullType(inner), nil
	case "LIST":
		inner, err := convertTypeRef(ref.OfType)
		if err != nil {
			return nil, err
		}
		return schema.ListType(inner), nil
	}
	if ref.Name == nil || *ref.Name == "" {
		return nil, fmt.Errorf("named %s reference without a name", ref.Kind)
	}
	return schema.NamedType(*ref.Name), nil
}

func refName(ref *typeRef) string {
	if ref.Name == nil {
		return ""
	}
	return *ref.Name
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func reason(s *string) string {
	if s == nil || *s == "" {
		return "No longer supported"
	}
	return *s
}
