package introspection

import (
	schema "github.com/hanpama/stitchgraph/internal/schema"
)

// extendSchemaWithIntrospection returns a copy of original that also serves
// the introspection types and the __schema/__type root fields. original is
// left untouched so introspection reports exactly what was built.
func extendSchemaWithIntrospection(original *schema.Schema) *schema.Schema {
	extended := &schema.Schema{
		QueryType:        original.QueryType,
		MutationType:     original.MutationType,
		SubscriptionType: original.SubscriptionType,
		Types:            make(map[string]*schema.Type, len(original.Types)+len(metaTypes)),
		Directives:       original.Directives,
		Description:      original.Description,
	}
	for name, typ := range original.Types {
		extended.Types[name] = typ
	}
	for _, build := range metaTypes {
		t := build()
		extended.Types[t.Name] = t
	}

	if queryType := extended.GetQueryType(); queryType != nil {
		q := queryType.Clone()
		q.AddField(schema.NewField("__schema", "Access the current type schema of this server.", nonNull(named("__Schema"))))
		q.AddField(schema.NewField("__type", "Request the type information of a single type.", named("__Type")).
			AddArgument(schema.NewInputValue("name", "The name of the type to look up.", nonNull(named("String")))))
		extended.Types[q.Name] = q
	}
	return extended
}

var metaTypes = []func() *schema.Type{
	func() *schema.Type {
		return object("__Schema", "A GraphQL Schema defines the capabilities of a GraphQL server.",
			field("types", "A list of all types supported by this server.", nonNullList("__Type")),
			field("queryType", "The type that query operations will be rooted at.", nonNull(named("__Type"))),
			field("mutationType", "If this server supports mutation, the type that mutation operations will be rooted at.", named("__Type")),
			field("subscriptionType", "If this server support subscription, the type that subscription operations will be rooted at.", named("__Type")),
			field("directives", "A list of all directives supported by this server.", nonNullList("__Directive")),
			field("description", "A description of the schema.", named("String")),
		)
	},
	func() *schema.Type {
		return object("__Type", "The fundamental unit of any GraphQL Schema is the type.",
			field("kind", "The kind of type.", nonNull(named("__TypeKind"))),
			field("name", "The name of the type.", named("String")),
			field("description", "The description of the type.", named("String")),
			filtered(field("fields", "", list("__Field"))),
			field("interfaces", "", list("__Type")),
			field("possibleTypes", "", list("__Type")),
			filtered(field("enumValues", "", list("__EnumValue"))),
			filtered(field("inputFields", "", list("__InputValue"))),
			field("ofType", "", named("__Type")),
			field("specifiedByURL", "", named("String")),
			field("isOneOf", "", named("Boolean")),
		)
	},
	func() *schema.Type {
		return object("__Field", "",
			field("name", "", nonNull(named("String"))),
			field("description", "", named("String")),
			filtered(field("args", "", nonNullList("__InputValue"))),
			field("type", "", nonNull(named("__Type"))),
			field("isDeprecated", "", nonNull(named("Boolean"))),
			field("deprecationReason", "", named("String")),
		)
	},
	func() *schema.Type {
		return object("__InputValue", "",
			field("name", "", nonNull(named("String"))),
			field("description", "", named("String")),
			field("type", "", nonNull(named("__Type"))),
			field("defaultValue", "", named("String")),
			field("isDeprecated", "", nonNull(named("Boolean"))),
			field("deprecationReason", "", named("String")),
		)
	},
	func() *schema.Type {
		return object("__EnumValue", "",
			field("name", "", nonNull(named("String"))),
			field("description", "", named("String")),
			field("isDeprecated", "", nonNull(named("Boolean"))),
			field("deprecationReason", "", named("String")),
		)
	},
	func() *schema.Type {
		return object("__Directive", "",
			field("name", "", nonNull(named("String"))),
			field("description", "", named("String")),
			field("isRepeatable", "", nonNull(named("Boolean"))),
			field("locations", "", nonNullList("__DirectiveLocation")),
			filtered(field("args", "", nonNullList("__InputValue"))),
		)
	},
	func() *schema.Type {
		return enum("__TypeKind",
			"SCALAR", "OBJECT", "INTERFACE", "UNION", "ENUM", "INPUT_OBJECT", "LIST", "NON_NULL")
	},
	func() *schema.Type {
		return enum("__DirectiveLocation",
			"QUERY", "MUTATION", "SUBSCRIPTION", "FIELD",
			"FRAGMENT_DEFINITION", "FRAGMENT_SPREAD", "INLINE_FRAGMENT", "VARIABLE_DEFINITION",
			"SCHEMA", "SCALAR", "OBJECT", "FIELD_DEFINITION", "ARGUMENT_DEFINITION",
			"INTERFACE", "UNION", "ENUM", "ENUM_VALUE", "INPUT_OBJECT", "INPUT_FIELD_DEFINITION")
	},
}

func object(name, description string, fields ...*schema.Field) *schema.Type {
	t := schema.NewType(name, schema.TypeKindObject, description)
	for _, f := range fields {
		t.AddField(f)
	}
	return t
}

func enum(name string, values ...string) *schema.Type {
	t := schema.NewType(name, schema.TypeKindEnum, "")
	for _, v := range values {
		t.AddEnumValue(schema.NewEnumValue(v, ""))
	}
	return t
}

func field(name, description string, typ *schema.TypeRef) *schema.Field {
	return schema.NewField(name, description, typ)
}

// filtered adds the includeDeprecated argument.
func filtered(f *schema.Field) *schema.Field {
	return f.AddArgument(schema.NewInputValue("includeDeprecated", "", named("Boolean")).SetDefault(false))
}

func named(name string) *schema.TypeRef      { return schema.NamedType(name) }
func nonNull(t *schema.TypeRef) *schema.TypeRef { return schema.NonNullType(t) }
func list(name string) *schema.TypeRef       { return schema.ListType(schema.NonNullType(named(name))) }

func nonNullList(name string) *schema.TypeRef { return nonNull(list(name)) }
