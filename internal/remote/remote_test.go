package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	language "github.com/hanpama/stitchgraph/internal/language"
	"github.com/hanpama/stitchgraph/internal/link"
	schema "github.com/hanpama/stitchgraph/internal/schema"
	"github.com/hanpama/stitchgraph/internal/servicetest"
	"github.com/stretchr/testify/require"
)

const usersSDL = `
"""A registered account."""
type User {
  id: ID!
  name: String
  email: String @deprecated(reason: "use contact")
  role: Role
}

enum Role { ADMIN MEMBER }

input UserFilter {
  role: Role = MEMBER
  prefix: String
}

type Query {
  userById(id: ID!): User
  users(limit: Int = 10, filter: UserFilter): [User!]!
}
`

var userRows = map[string]map[string]any{
	"1": {"id": "1", "name": "Ada", "role": "ADMIN"},
	"2": {"id": "2", "name": "Grace", "role": "MEMBER"},
}

func usersService(t *testing.T) *servicetest.Service {
	return servicetest.MustNew(t, "users", usersSDL, map[string]servicetest.Resolver{
		"Query.userById": func(_ any, args map[string]any) (any, error) {
			row, ok := userRows[fmt.Sprint(args["id"])]
			if !ok {
				return nil, nil
			}
			return row, nil
		},
		"Query.users": func(any, map[string]any) (any, error) {
			return []any{userRows["1"], userRows["2"]}, nil
		},
	})
}

func selection(t *testing.T, query string) (*language.OperationDefinition, language.SelectionSet) {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	op := doc.Operations[0]
	return op, op.SelectionSet[0].(*language.Field).SelectionSet
}

func normalize(t *testing.T, query string) string {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return language.FormatQuery(doc)
}

func TestRegister(t *testing.T) {
	svc := usersService(t)
	d, err := Register(context.Background(), "users", "mem://users", svc.Link())
	require.NoError(t, err)
	require.Equal(t, "users", d.Name)
	require.Equal(t, "mem://users", d.URI)
	require.Equal(t, "Query", d.Schema.QueryType)
	require.Empty(t, d.Schema.MutationType)

	want, err := schema.BuildFromSDL(usersSDL)
	require.NoError(t, err)
	for _, name := range []string{"User", "Role", "UserFilter", "Query"} {
		require.NotNil(t, d.Schema.Types[name], name)
		require.Equal(t, schema.Signature(want.Types[name]), schema.Signature(d.Schema.Types[name]), name)
	}
	require.Nil(t, d.Schema.Types["__Schema"])

	user := d.Schema.Types["User"]
	require.Equal(t, "A registered account.", user.Description)
	email := user.Field("email")
	require.True(t, email.IsDeprecated)
	require.Equal(t, "use contact", email.DeprecationReason)

	users := d.Schema.GetQueryType().Field("users")
	require.Equal(t, schema.Literal("10"), users.Argument("limit").DefaultValue)
	require.Equal(t, "[User!]!", users.Type.String())

	reqs := svc.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "IntrospectionQuery", reqs[0].OperationName)
}

func TestRegister_Idempotent(t *testing.T) {
	svc := usersService(t)
	a, err := Register(context.Background(), "users", "mem://users", svc.Link())
	require.NoError(t, err)
	b, err := Register(context.Background(), "users", "mem://users", svc.Link())
	require.NoError(t, err)

	require.Equal(t, schema.Render(a.Schema), schema.Render(b.Schema))
	require.Len(t, b.Schema.Types, len(a.Schema.Types))
	for name, at := range a.Schema.Types {
		require.Equal(t, schema.Signature(at), schema.Signature(b.Schema.Types[name]), name)
	}
}

func TestRegister_CustomRootName(t *testing.T) {
	svc := servicetest.MustNew(t, "chirps", `
schema { query: Root mutation: Writes }
type Root { ping: String }
type Writes { post(text: String!): String }
`, nil)
	d, err := Register(context.Background(), "chirps", "mem://chirps", svc.Link())
	require.NoError(t, err)
	require.Equal(t, "Root", d.Schema.QueryType)
	require.Equal(t, "Writes", d.Schema.MutationType)
	require.NotNil(t, d.Schema.GetMutationType().Field("post"))
}

func TestRegister_Failures(t *testing.T) {
	boom := errors.New("connection refused")
	cases := []struct {
		name string
		link link.Func
		want string
	}{
		{
			name: "transport",
			link: func(context.Context, *link.Request) (*link.Response, error) { return nil, boom },
			want: "connection refused",
		},
		{
			name: "graphql errors",
			link: func(context.Context, *link.Request) (*link.Response, error) {
				return &link.Response{Errors: []link.RemoteError{{Message: "introspection disabled"}}}, nil
			},
			want: "introspection disabled",
		},
		{
			name: "no schema",
			link: func(context.Context, *link.Request) (*link.Response, error) {
				return &link.Response{Data: map[string]any{}}, nil
			},
			want: "no __schema",
		},
		{
			name: "unknown kind",
			link: func(context.Context, *link.Request) (*link.Response, error) {
				return &link.Response{Data: map[string]any{"__schema": map[string]any{
					"queryType": map[string]any{"name": "Query"},
					"types":     []any{map[string]any{"kind": "BLOB", "name": "Query"}},
				}}}, nil
			},
			want: `unknown kind "BLOB"`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Register(context.Background(), "users", "http://users.local/graphql", tc.link)
			var ie *IntrospectionError
			require.ErrorAs(t, err, &ie)
			require.Equal(t, "users", ie.Service)
			require.Equal(t, "http://users.local/graphql", ie.URI)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestRegisterAll(t *testing.T) {
	users := usersService(t)
	chirps := servicetest.MustNew(t, "chirps", `type Query { chirp(id: ID!): String }`, nil)

	ds, err := RegisterAll(context.Background(), []Service{
		{Name: "users", URI: "mem://users", Link: users.Link()},
		{Name: "chirps", URI: "mem://chirps", Link: chirps.Link()},
	}, nil)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	require.Equal(t, "users", ds[0].Name)
	require.Equal(t, "chirps", ds[1].Name)

	_, err = RegisterAll(context.Background(), []Service{
		{Name: "users", Link: users.Link()},
		{Name: "users", Link: users.Link()},
	}, nil)
	require.ErrorContains(t, err, "configured twice")
}

func TestRegisterAll_OneFailureFailsAll(t *testing.T) {
	users := usersService(t)
	broken := link.Func(func(context.Context, *link.Request) (*link.Response, error) {
		return nil, errors.New("no route to host")
	})
	ds, err := RegisterAll(context.Background(), []Service{
		{Name: "users", Link: users.Link()},
		{Name: "chirps", URI: "mem://chirps", Link: broken},
	}, nil)
	require.Nil(t, ds)
	var ie *IntrospectionError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, "chirps", ie.Service)
}

func TestRegisterAll_CustomRegister(t *testing.T) {
	users := usersService(t)
	calls := 0
	ds, err := RegisterAll(context.Background(), []Service{{Name: "users", Link: users.Link()}},
		func(ctx context.Context, s Service) (*Descriptor, error) {
			calls++
			return Register(ctx, s.Name, s.URI, s.Link)
		})
	require.NoError(t, err)
	require.Len(t, ds, 1)
	require.Equal(t, 1, calls)
}

func register(t *testing.T, svc *servicetest.Service) *Descriptor {
	t.Helper()
	d, err := Register(context.Background(), svc.Name, "mem://"+svc.Name, svc.Link())
	require.NoError(t, err)
	return d
}

func TestDelegate(t *testing.T) {
	svc := usersService(t)
	d := register(t, svc)
	svc.Reset()

	_, sel := selection(t, `{ userById { id handle: name } }`)
	got, err := d.Delegate(context.Background(), &DelegatedQuery{
		FieldName:    "userById",
		Arguments:    map[string]any{"id": "1"},
		SelectionSet: sel,
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": "1", "handle": "Ada"}, got.Value)
	require.Empty(t, got.Errors)

	reqs := svc.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, normalize(t, `query ($_stitch_id: ID!) { userById(id: $_stitch_id) { id handle: name } }`), reqs[0].Query)
	require.Equal(t, map[string]any{"_stitch_id": "1"}, reqs[0].Variables)
}

func TestDelegate_ArgumentsAreSortedAndTyped(t *testing.T) {
	d := register(t, usersService(t))
	_, sel := selection(t, `{ users { id } }`)
	req, err := d.Prepare(&DelegatedQuery{
		FieldName:    "users",
		Arguments:    map[string]any{"limit": 1, "filter": map[string]any{"role": "ADMIN"}},
		SelectionSet: sel,
	})
	require.NoError(t, err)
	require.Equal(t, normalize(t, `query ($_stitch_filter: UserFilter, $_stitch_limit: Int) {
  users(filter: $_stitch_filter, limit: $_stitch_limit) { id }
}`), req.Query)

	again, err := d.Prepare(&DelegatedQuery{
		FieldName:    "users",
		Arguments:    map[string]any{"filter": map[string]any{"role": "ADMIN"}, "limit": 1},
		SelectionSet: sel,
	})
	require.NoError(t, err)
	require.Equal(t, req, again)
}

func TestDelegate_ForwardsCallerVariables(t *testing.T) {
	svc := usersService(t)
	d := register(t, svc)
	svc.Reset()

	op, sel := selection(t, `query ($withName: Boolean!) { userById { id name @include(if: $withName) } }`)
	got, err := d.Delegate(context.Background(), &DelegatedQuery{
		FieldName:           "userById",
		Arguments:           map[string]any{"id": "2"},
		SelectionSet:        sel,
		VariableDefinitions: op.VariableDefinitions,
		Variables:           map[string]any{"withName": false},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": "2"}, got.Value)
	require.Equal(t, map[string]any{"_stitch_id": "2", "withName": false}, svc.Requests()[0].Variables)

	_, err = d.Prepare(&DelegatedQuery{
		FieldName:           "userById",
		Arguments:           map[string]any{"id": "2"},
		SelectionSet:        sel,
		VariableDefinitions: language.VariableDefinitionList{{Variable: "_stitch_id", Type: &language.Type{NamedType: "ID"}}},
	})
	require.ErrorContains(t, err, "reserved prefix")
}

func TestDelegate_EmptySelection(t *testing.T) {
	d := register(t, usersService(t))
	req, err := d.Prepare(&DelegatedQuery{FieldName: "userById", Arguments: map[string]any{"id": "1"}})
	require.NoError(t, err)
	require.Equal(t, normalize(t, `query ($_stitch_id: ID!) { userById(id: $_stitch_id) { __typename } }`), req.Query)
}

func TestDelegate_Failures(t *testing.T) {
	d := register(t, usersService(t))

	_, err := d.Delegate(context.Background(), &DelegatedQuery{FieldName: "nope"})
	var de *DelegationError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "nope", de.Field)
	require.ErrorContains(t, err, "does not define Query.nope")

	_, err = d.Delegate(context.Background(), &DelegatedQuery{FieldName: "userById", Arguments: map[string]any{"uid": "1"}})
	require.ErrorContains(t, err, `no argument "uid"`)

	failing := &Descriptor{Name: "users", Schema: d.Schema}

	failing.Link = link.Func(func(context.Context, *link.Request) (*link.Response, error) {
		return &link.Response{
			Data:   map[string]any{"userById": nil},
			Errors: []link.RemoteError{{Message: "database unavailable"}},
		}, nil
	})
	_, err = failing.Delegate(context.Background(), &DelegatedQuery{FieldName: "userById", Arguments: map[string]any{"id": "1"}})
	require.ErrorAs(t, err, &de)
	require.False(t, de.Timeout)
	require.Equal(t, map[string]any{"code": "DELEGATION_FAILED", "service": "users", "timeout": false}, de.Extensions())
	require.ErrorContains(t, err, "database unavailable")

	failing.Link = link.Func(func(context.Context, *link.Request) (*link.Response, error) {
		return nil, fmt.Errorf("post: %w", context.DeadlineExceeded)
	})
	_, err = failing.Delegate(context.Background(), &DelegatedQuery{FieldName: "userById", Arguments: map[string]any{"id": "1"}})
	require.ErrorAs(t, err, &de)
	require.True(t, de.Timeout)
	require.Equal(t, true, de.Extensions()["timeout"])
}

func TestDelegate_ErrorsBelowValueAreRelocated(t *testing.T) {
	d := register(t, usersService(t))
	d.Link = link.Func(func(context.Context, *link.Request) (*link.Response, error) {
		return &link.Response{
			Data: map[string]any{"users": []any{
				map[string]any{"id": "1", "name": nil},
			}},
			Errors: []link.RemoteError{
				{Message: "name unavailable", Path: []any{"users", json.Number("0"), "name"}, Extensions: map[string]any{"code": "UNAVAILABLE"}},
				{Message: "slow replica"},
			},
		}, nil
	})
	got, err := d.Delegate(context.Background(), &DelegatedQuery{FieldName: "users"})
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"id": "1", "name": nil}}, got.Value)
	require.Equal(t, []link.RemoteError{
		{Message: "name unavailable", Path: []any{0, "name"}, Extensions: map[string]any{"code": "UNAVAILABLE"}},
		{Message: "slow replica"},
	}, got.Errors)
}

func TestDelegate_OverHTTP(t *testing.T) {
	svc := usersService(t)
	srv := httptest.NewServer(svc)
	defer srv.Close()
	l := link.NewHTTP(srv.URL)
	defer l.Close()

	d, err := Register(context.Background(), "users", srv.URL, l)
	require.NoError(t, err)

	_, sel := selection(t, `{ users { id role } }`)
	got, err := d.Delegate(context.Background(), &DelegatedQuery{
		FieldName:    "users",
		Arguments:    map[string]any{"limit": json.Number("2")},
		SelectionSet: sel,
	})
	require.NoError(t, err)
	require.Equal(t, []any{
		map[string]any{"id": "1", "role": "ADMIN"},
		map[string]any{"id": "2", "role": "MEMBER"},
	}, got.Value)
}
