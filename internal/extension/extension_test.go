package extension

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	schema "github.com/hanpama/stitchgraph/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	defs, err := Compile("links.graphql", `
extend type User {
  "Chirps written by the user."
  chirps(limit: Int = 10): [Chirp]
}

extend type Chirp {
  author: User!
  writer: User @deprecated(reason: "use author")
}
`)
	require.NoError(t, err)

	want := []Definition{
		{
			OwnerType:   "User",
			FieldName:   "chirps",
			ReturnType:  schema.ListType(schema.NamedType("Chirp")),
			Description: "Chirps written by the user.",
			Arguments: []*schema.InputValue{
				schema.NewInputValue("limit", "", schema.NamedType("Int")).SetDefault(schema.Literal("10")),
			},
		},
		{
			OwnerType:  "Chirp",
			FieldName:  "author",
			ReturnType: schema.NonNullType(schema.NamedType("User")),
		},
		{
			OwnerType:         "Chirp",
			FieldName:         "writer",
			ReturnType:        schema.NamedType("User"),
			Deprecated:        true,
			DeprecationReason: "use author",
		},
	}
	if diff := cmp.Diff(want, defs); diff != "" {
		t.Fatalf("definitions mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, "Chirp", defs[0].ReturnTypeName())
	require.Equal(t, "User.chirps", defs[0].Coordinate())

	f := defs[0].Field()
	require.Equal(t, "[Chirp]", f.Type.String())
	require.NotNil(t, f.Argument("limit"))
	require.False(t, f.Async)
}

func TestCompile_Empty(t *testing.T) {
	defs, err := Compile("empty.graphql", "  # nothing to extend\n")
	require.NoError(t, err)
	require.Empty(t, defs)
}

func TestCompile_Errors(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		typ   string
		field string
		line  int
		msg   string
	}{
		{name: "lexer", text: "extend type User { chirps: [Chirp }", line: 1, msg: "Expected ]"},
		{name: "plain type", text: "type User { id: ID }", typ: "User", line: 1, msg: "only `extend type` blocks are allowed"},
		{name: "interface", text: "extend interface Node { x: Int }", typ: "Node", line: 1, msg: "cannot extend interface types"},
		{name: "input", text: "extend input Filter { x: Int }", typ: "Filter", line: 1, msg: "cannot extend input types"},
		{name: "implements", text: "extend type User implements Node { x: Int }", typ: "User", line: 1, msg: "cannot add interfaces"},
		{name: "schema", text: "extend schema { query: Q }", line: 1, msg: "schema definitions are not allowed"},
		{name: "directive definition", text: "directive @key on OBJECT", line: 1, msg: "@key is not allowed"},
		{
			name: "duplicate field",
			text: "extend type User { chirps: [Chirp] }\nextend type User { chirps: [Chirp] }",
			typ:  "User", field: "chirps", line: 2, msg: "field declared twice",
		},
		{
			name: "duplicate argument",
			text: "extend type User {\n  chirps(limit: Int, limit: Int): [Chirp]\n}",
			typ:  "User", field: "chirps", line: 2, msg: "argument limit declared twice",
		},
		{name: "unknown directive", text: "extend type User { chirps: [Chirp] @external }", typ: "User", field: "chirps", line: 1, msg: "unsupported directive @external"},
		{name: "reserved name", text: "extend type User { __chirps: [Chirp] }", typ: "User", field: "__chirps", line: 1, msg: "reserved"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile("links.graphql", tc.text)
			var se *SchemaExtensionSyntaxError
			require.ErrorAs(t, err, &se)
			require.Equal(t, tc.typ, se.Type)
			require.Equal(t, tc.field, se.Field)
			require.Equal(t, tc.line, se.Line)
			require.Contains(t, se.Message, tc.msg)
		})
	}
}
