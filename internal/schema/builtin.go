package schema

import "strings"

// The five specified scalars. They are shared between schemas and must not
// be modified.
var builtinScalars = map[string]*Type{
	"String":  NewType("String", TypeKindScalar, "The `String` scalar type represents textual data, represented as UTF-8 character sequences."),
	"Int":     NewType("Int", TypeKindScalar, "The `Int` scalar type represents non-fractional signed whole numeric values."),
	"Float":   NewType("Float", TypeKindScalar, "The `Float` scalar type represents signed double-precision fractional values."),
	"Boolean": NewType("Boolean", TypeKindScalar, "The `Boolean` scalar type represents `true` or `false`."),
	"ID":      NewType("ID", TypeKindScalar, "The `ID` scalar type represents a unique identifier, often used to refetch an object or as a key for caching."),
}

var builtinDirectives = map[string]*Directive{
	"include": executableCondition("include",
		"Directs the executor to include this field or fragment only when the `if` argument is true.", "Included when true."),
	"skip": executableCondition("skip",
		"Directs the executor to skip this field or fragment when the `if` argument is true.", "Skipped when true."),
	"deprecated": onLocations(
		NewDirective("deprecated", "Marks an element of a GraphQL schema as no longer supported.").
			AddArgument(NewInputValue("reason", "", NamedType("String")).SetDefault("No longer supported")),
		"FIELD_DEFINITION", "ARGUMENT_DEFINITION", "INPUT_FIELD_DEFINITION", "ENUM_VALUE"),
}

// sdlOnlyDirectives are understood by the schema builder and rendered as
// part of the type they annotate.
var sdlOnlyDirectives = map[string]bool{"specifiedBy": true, "oneOf": true}

func executableCondition(name, description, ifDescription string) *Directive {
	d := NewDirective(name, description).
		AddArgument(NewInputValue("if", ifDescription, NonNullType(NamedType("Boolean"))))
	return onLocations(d, "FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT")
}

func onLocations(d *Directive, locations ...string) *Directive {
	d.Locations = append(d.Locations, locations...)
	return d
}

// IsBuiltinScalar reports whether name is one of the five specified scalars.
func IsBuiltinScalar(name string) bool {
	_, ok := builtinScalars[name]
	return ok
}

// IsBuiltinDirective reports whether name is a directive every schema carries
// implicitly, @specifiedBy and @oneOf included.
func IsBuiltinDirective(name string) bool {
	_, ok := builtinDirectives[name]
	return ok || sdlOnlyDirectives[name]
}

// IsIntrospectionName reports whether name is reserved for introspection.
func IsIntrospectionName(name string) bool {
	return strings.HasPrefix(name, "__")
}

// NewSchemaWithBuiltins returns an empty schema that already holds the builtin
// scalars and directives.
func NewSchemaWithBuiltins(description string) *Schema {
	s := NewSchema(description)
	for _, t := range builtinScalars {
		s.AddType(t)
	}
	for _, d := range builtinDirectives {
		s.AddDirective(d)
	}
	return s
}
