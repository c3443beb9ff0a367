package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hanpama/stitchgraph/internal/metrics"
	"github.com/hanpama/stitchgraph/internal/servicetest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const usersSDL = `type User { id: ID! name: String! }
type Query { userById(id: ID!): User }
`

const chirpsSDL = `type Chirp { id: ID! text: String! authorId: ID! }
type Query { chirpsByAuthorId(authorId: ID!): [Chirp!]! }
`

func startServices(t *testing.T) (usersURL, chirpsURL string) {
	t.Helper()
	users := servicetest.MustNew(t, "users", usersSDL, map[string]servicetest.Resolver{
		"Query.userById": func(_ any, args map[string]any) (any, error) {
			return map[string]any{"id": args["id"], "name": "Ada"}, nil
		},
	})
	chirps := servicetest.MustNew(t, "chirps", chirpsSDL, map[string]servicetest.Resolver{
		"Query.chirpsByAuthorId": func(_ any, args map[string]any) (any, error) {
			return []any{map[string]any{"id": "c1", "text": "hello", "authorId": args["authorId"]}}, nil
		},
	})
	us := httptest.NewServer(users)
	cs := httptest.NewServer(chirps)
	t.Cleanup(us.Close)
	t.Cleanup(cs.Close)
	return us.URL, cs.URL
}

func writeConfig(t *testing.T, usersURL, chirpsURL string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "links.graphql"), []byte(`
extend type User { chirps: [Chirp!] }
extend type Chirp { author: User }
`), 0o644))
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`
services:
  - name: users
    url: %s
  - name: chirps
    url: %s
extensionsFile: links.graphql
bindings:
  - {type: User, field: chirps, service: chirps, fragment: "{ id }", operation: chirpsByAuthorId, arguments: {authorId: id}}
  - {type: Chirp, field: author, service: users, fragment: "{ authorId }", operation: userById, arguments: {id: authorId}}
`, usersURL, chirpsURL)), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errb bytes.Buffer
	err = run(context.Background(), args, &out, &errb)
	return out.String(), errb.String(), err
}

func TestHelp(t *testing.T) {
	out, _, err := runCLI(t, "help", "serve")
	require.NoError(t, err)
	require.Contains(t, out, "serve FLAGS")

	out, _, err = runCLI(t, "help")
	require.NoError(t, err)
	require.Contains(t, out, "compile-sdl")

	_, _, err = runCLI(t, "help", "nope")
	require.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	_, stderr, err := runCLI(t, "frobnicate")
	require.ErrorContains(t, err, `unknown command "frobnicate"`)
	require.Contains(t, stderr, "USAGE")

	_, _, err = runCLI(t)
	require.ErrorContains(t, err, "missing command")

	_, stderr, err = runCLI(t, "serve")
	require.ErrorContains(t, err, "-config is required")
	require.Contains(t, stderr, "serve FLAGS")
}

func TestCheck(t *testing.T) {
	path := writeConfig(t, "http://users.test/graphql", "http://chirps.test/graphql")
	out, _, err := runCLI(t, "check", "-config", path)
	require.NoError(t, err)
	require.Contains(t, out, "2 services, 2 extension fields, 2 bindings")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
services:
  - {name: users, url: "http://users.test/graphql"}
extensions: "extend type User { friends: [User] }"
`), 0o644))
	_, _, err = runCLI(t, "check", "-config", bad)
	require.ErrorContains(t, err, "User.friends has no binding")
}

func TestCompileSDL(t *testing.T) {
	path := writeConfig(t, startServices(t))
	out, _, err := runCLI(t, "compile-sdl", "-config", path)
	require.NoError(t, err)
	require.Contains(t, out, "chirps: [Chirp!]")
	require.Contains(t, out, "author: User")
	require.Contains(t, out, "type Query")

	file := filepath.Join(t.TempDir(), "stitched.graphql")
	_, _, err = runCLI(t, "compile-sdl", "-config", path, "-out", file)
	require.NoError(t, err)
	written, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, out, string(written))
}

func TestIntrospect(t *testing.T) {
	var got string
	users := servicetest.MustNew(t, "users", usersSDL, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Api-Key")
		users.ServeHTTP(w, r)
	}))
	defer srv.Close()

	out, _, err := runCLI(t, "introspect", "-url", srv.URL, "-header", "X-Api-Key: k1")
	require.NoError(t, err)
	require.Equal(t, "k1", got)
	require.Contains(t, out, "userById(id: ID!): User")

	_, _, err = runCLI(t, "introspect", "-header", "broken")
	require.Error(t, err)
}

func TestServe(t *testing.T) {
	path := writeConfig(t, startServices(t))
	m, err := metrics.New()
	require.NoError(t, err)

	g, err := newGateway(context.Background(), serveOptions{
		configPath:    path,
		introspection: true,
		addr:          "127.0.0.1:0",
		timeout:       5 * time.Second,
		cacheSize:     10,
	}, m, zap.NewNop())
	require.NoError(t, err)
	defer g.close()
	go func() { _ = serveListener(g.listener, g.srv) }()

	base := "http://" + g.listener.Addr().String()
	resp, err := http.Post(base+"/graphql", "application/json",
		strings.NewReader(`{"query":"{ userById(id: \"1\") { name chirps { text author { name } } } }"}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.JSONEq(t, `{"data":{"userById":{"name":"Ada","chirps":[{"text":"hello","author":{"name":"Ada"}}]}}}`, string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.shutdown(ctx))
}
