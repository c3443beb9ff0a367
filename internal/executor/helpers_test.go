package executor_test

import (
	"context"
	"strings"
	"testing"

	executor "github.com/hanpama/stitchgraph/internal/executor"
	language "github.com/hanpama/stitchgraph/internal/language"
	schema "github.com/hanpama/stitchgraph/internal/schema"
	"github.com/stretchr/testify/require"
)

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

// buildSchema loads sdl and marks the given "Type.field" coordinates async.
func buildSchema(t *testing.T, sdl string, async ...string) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	for _, coord := range async {
		typeName, fieldName, _ := strings.Cut(coord, ".")
		f := sch.Types[typeName].Field(fieldName)
		require.NotNil(t, f, coord)
		f.SetAsync(true)
	}
	return sch
}

// prop resolves a field by reading key from a map source.
func prop(key string) executor.MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		m, _ := source.(map[string]any)
		return m[key], nil
	}
}
