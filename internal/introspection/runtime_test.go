package introspection

import (
	"context"
	"testing"

	executor "github.com/hanpama/stitchgraph/internal/executor"
	language "github.com/hanpama/stitchgraph/internal/language"
	schema "github.com/hanpama/stitchgraph/internal/schema"
	"github.com/stretchr/testify/require"
)

// noopRuntime implements executor.Runtime with no behaviour.
type noopRuntime struct{}

func (noopRuntime) ResolveSync(context.Context, executor.FieldInfo, any, map[string]any) (any, error) {
	return nil, nil
}

func (noopRuntime) BatchResolveAsync(_ context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return make([]executor.AsyncResolveResult, len(tasks))
}

func (noopRuntime) ResolveType(context.Context, string, any) (string, error) {
	return "", nil
}

func (noopRuntime) SerializeLeafValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

func buildSchema(t *testing.T, sdl string) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	return sch
}

func execute(t *testing.T, sch *schema.Schema, query string) map[string]any {
	t.Helper()
	wrapper := Wrap(noopRuntime{}, sch)
	exec := executor.NewExecutor(wrapper.Runtime, wrapper.Schema)
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	return res.Data.(map[string]any)
}

func TestIntrospectionEnabled(t *testing.T) {
	data := execute(t, buildSchema(t, `type Query { hello: String }`), "{__schema{queryType{name}}}")
	require.Equal(t, map[string]any{
		"__schema": map[string]any{"queryType": map[string]any{"name": "Query"}},
	}, data)
}

func TestIntrospection_CustomRootName(t *testing.T) {
	sch := buildSchema(t, `
schema { query: Root }
type Root { hello: String }
`)
	data := execute(t, sch, `{ __schema { queryType { name } } __type(name: "Root") { kind } }`)
	require.Equal(t, map[string]any{
		"__schema": map[string]any{"queryType": map[string]any{"name": "Root"}},
		"__type":   map[string]any{"kind": "OBJECT"},
	}, data)

	require.Nil(t, sch.GetQueryType().Field("__schema"), "the wrapped schema must not be modified")
	require.Nil(t, sch.Types["__Schema"])
}

func TestIntrospection_TypeRefs(t *testing.T) {
	sch := buildSchema(t, `
enum Format { PLAIN HTML }
type Query { chirps(format: Format = PLAIN, limit: Int = 10, tag: String = "go"): [Chirp!]! }
type Chirp { id: ID! }
`)
	data := execute(t, sch, `{
  __type(name: "Query") {
    fields {
      name
      args { name defaultValue type { kind name } }
      type { kind name ofType { kind name ofType { kind name ofType { kind name } } } }
    }
  }
}`)

	want := map[string]any{"__type": map[string]any{"fields": []any{
		map[string]any{
			"name": "chirps",
			"args": []any{
				map[string]any{"name": "format", "defaultValue": "PLAIN", "type": map[string]any{"kind": "ENUM", "name": "Format"}},
				map[string]any{"name": "limit", "defaultValue": "10", "type": map[string]any{"kind": "SCALAR", "name": "Int"}},
				map[string]any{"name": "tag", "defaultValue": `"go"`, "type": map[string]any{"kind": "SCALAR", "name": "String"}},
			},
			"type": map[string]any{"kind": "NON_NULL", "name": nil, "ofType": map[string]any{
				"kind": "LIST", "name": nil, "ofType": map[string]any{
					"kind": "NON_NULL", "name": nil, "ofType": map[string]any{"kind": "OBJECT", "name": "Chirp"},
				},
			}},
		},
	}}}
	require.Equal(t, want, data)
}

func TestTypenameField(t *testing.T) {
	sch := buildSchema(t, `type Query { hello: String }`)
	exec := executor.NewExecutor(noopRuntime{}, sch)
	doc, err := language.ParseQuery("{__typename}")
	require.NoError(t, err)

	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"__typename": "Query"}, res.Data)
}

func TestIntrospection_DeclarationOrderAndDeprecation(t *testing.T) {
	sch := buildSchema(t, `
type Query { zeta: String alpha: String @deprecated(reason: "use zeta") node: Node }
interface Node { id: ID! }
type User implements Node { id: ID! }
type Chirp implements Node { id: ID! }
enum Format { PLAIN HTML @deprecated }
`)
	data := execute(t, sch, `{
  q: __type(name: "Query") { fields { name } }
  all: __type(name: "Query") { fields(includeDeprecated: true) { name isDeprecated deprecationReason } }
  format: __type(name: "Format") { enumValues { name } }
  node: __type(name: "Node") { possibleTypes { name } fields { name } }
  user: __type(name: "User") { interfaces { name } possibleTypes { name } enumValues { name } }
}`)

	require.Equal(t, map[string]any{
		"q": map[string]any{"fields": []any{
			map[string]any{"name": "zeta"},
			map[string]any{"name": "node"},
		}},
		"all": map[string]any{"fields": []any{
			map[string]any{"name": "zeta", "isDeprecated": false, "deprecationReason": nil},
			map[string]any{"name": "alpha", "isDeprecated": true, "deprecationReason": "use zeta"},
			map[string]any{"name": "node", "isDeprecated": false, "deprecationReason": nil},
		}},
		"format": map[string]any{"enumValues": []any{map[string]any{"name": "PLAIN"}}},
		"node": map[string]any{
			"possibleTypes": []any{map[string]any{"name": "Chirp"}, map[string]any{"name": "User"}},
			"fields":        []any{map[string]any{"name": "id"}},
		},
		"user": map[string]any{
			"interfaces":    []any{map[string]any{"name": "Node"}},
			"possibleTypes": nil,
			"enumValues":    nil,
		},
	}, data)
}

func TestIntrospection_TypesSortedByName(t *testing.T) {
	sch := buildSchema(t, `type Query { b: B a: A } type B { x: Int } type A { x: Int }`)
	data := execute(t, sch, `{ __schema { types { name } } }`)

	var names []string
	for _, typ := range data["__schema"].(map[string]any)["types"].([]any) {
		names = append(names, typ.(map[string]any)["name"].(string))
	}
	require.IsIncreasing(t, names)
	require.Contains(t, names, "A")
	require.NotContains(t, names, "__Schema")
}
