package link

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	eventbus "github.com/hanpama/stitchgraph/internal/eventbus"
	events "github.com/hanpama/stitchgraph/internal/events"
	"github.com/hanpama/stitchgraph/internal/reqid"
	"github.com/stretchr/testify/require"
)

func TestHTTPLink_Execute(t *testing.T) {
	var gotHeader http.Header
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"userById":{"id":"1","age":9007199254740993}}}`))
	}))
	defer srv.Close()

	l := NewHTTP(srv.URL, WithHeader("X-Gateway", "stitchgraph"))
	defer l.Close()

	ctx, id := reqid.NewContext(context.Background())
	ctx = WithForwardedHeaders(ctx, http.Header{"Authorization": {"Bearer t"}})
	resp, err := l.Execute(ctx, &Request{
		Query:     "query($id: ID!) { userById(id: $id) { id age } }",
		Variables: map[string]any{"id": "1"},
	})
	require.NoError(t, err)

	user := resp.Data["userById"].(map[string]any)
	require.Equal(t, "1", user["id"])
	require.Equal(t, json.Number("9007199254740993"), user["age"], "numbers keep their precision")

	require.Equal(t, "query($id: ID!) { userById(id: $id) { id age } }", gotReq.Query)
	require.Equal(t, map[string]any{"id": "1"}, gotReq.Variables)
	require.Equal(t, "stitchgraph", gotHeader.Get("X-Gateway"))
	require.Equal(t, "Bearer t", gotHeader.Get("Authorization"))
	require.Equal(t, id, gotHeader.Get(reqid.Header))
	require.Equal(t, "application/json", gotHeader.Get("Content-Type"))
}

func TestHTTPLink_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL).Execute(context.Background(), &Request{Query: "{ a }"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadGateway, se.Status)
	require.Equal(t, "upstream exploded", se.Body)
	require.False(t, IsTimeout(err))
}

func TestHTTPLink_MaxResponseBytes(t *testing.T) {
	payload := `{"data":{"a":"` + strings.Repeat("x", 64) + `"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, WithMaxResponseBytes(32)).Execute(context.Background(), &Request{Query: "{ a }"})
	require.ErrorIs(t, err, ErrResponseTooLarge)
	require.False(t, IsTimeout(err))

	resp, err := NewHTTP(srv.URL, WithMaxResponseBytes(int64(len(payload)))).Execute(context.Background(), &Request{Query: "{ a }"})
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("x", 64), resp.Data["a"])
}

func TestHTTPLink_ErrorListWithBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/graphql-response+json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"Cannot query field \"nope\""}]}`))
	}))
	defer srv.Close()

	resp, err := NewHTTP(srv.URL).Execute(context.Background(), &Request{Query: "{ nope }"})
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	require.EqualError(t, JoinErrors(resp.Errors), `Cannot query field "nope"`)
}

func TestHTTPLink_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTP(srv.URL, WithTimeout(20*time.Millisecond)).Execute(context.Background(), &Request{Query: "{ a }"})
	require.Error(t, err)
	require.True(t, IsTimeout(err), "got %v", err)
}

func TestHTTPLink_Events(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	var finished []events.LinkFinish
	eventbus.Subscribe(func(_ context.Context, e events.LinkFinish) { finished = append(finished, e) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"a":1}}`))
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL).Execute(context.Background(), &Request{Query: "query A { a }", OperationName: "A"})
	require.NoError(t, err)
	require.Len(t, finished, 1)
	require.Equal(t, srv.URL, finished[0].URI)
	require.Equal(t, "A", finished[0].OperationName)
	require.Equal(t, http.StatusOK, finished[0].Status)
	require.NoError(t, finished[0].Err)
}

func TestHTTPLink_Closed(t *testing.T) {
	l := NewHTTP("http://127.0.0.1:1")
	require.NoError(t, l.Close())
	_, err := l.Execute(context.Background(), &Request{Query: "{ a }"})
	require.ErrorContains(t, err, "closed")
}

func TestDecode(t *testing.T) {
	_, err := Decode([]byte(`{}`))
	require.Error(t, err)

	resp, err := Decode([]byte(`{"data":null,"errors":[{"message":"boom","path":["a",0]}]}`))
	require.NoError(t, err)
	require.Equal(t, []any{"a", json.Number("0")}, resp.Errors[0].Path)
}
