package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	eventbus "github.com/hanpama/stitchgraph/internal/eventbus"
	events "github.com/hanpama/stitchgraph/internal/events"
	"github.com/hanpama/stitchgraph/internal/link"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func attach(t *testing.T) *Metrics {
	t.Helper()
	m, err := New()
	require.NoError(t, err)
	b := eventbus.New()
	eventbus.Use(b)
	detach := m.Attach(b)
	t.Cleanup(func() {
		detach()
		eventbus.Use(nil)
	})
	return m
}

func TestMetrics_Events(t *testing.T) {
	m := attach(t)
	ctx := context.Background()

	eventbus.Publish(ctx, events.ServiceRegistered{Service: "users", URI: "http://users/graphql", Types: 7, Duration: 40 * time.Millisecond})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "query", Duration: time.Millisecond})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "query", Errors: []error{errors.New("boom")}})
	eventbus.Publish(ctx, events.GraphQLFinish{})
	eventbus.Publish(ctx, events.DelegationFinish{Service: "users", Type: "Chirp", Field: "author"})
	eventbus.Publish(ctx, events.DelegationFinish{Service: "users", Type: "Query", Field: "userById", Err: fmt.Errorf("delegate: %w", context.DeadlineExceeded)})
	eventbus.Publish(ctx, events.DelegationFinish{Service: "chirps", Type: "User", Field: "chirps", Err: errors.New("refused")})
	eventbus.Publish(ctx, events.HTTPFinish{Status: http.StatusOK})

	require.Equal(t, 7.0, testutil.ToFloat64(m.serviceTypes.WithLabelValues("users")))
	require.InDelta(t, 0.04, testutil.ToFloat64(m.registration.WithLabelValues("users")), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("query", OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("query", OutcomeError)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("unknown", OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.delegations.WithLabelValues("users", OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.delegations.WithLabelValues("users", OutcomeTimeout)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.delegations.WithLabelValues("chirps", OutcomeError)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("200")))
	require.Equal(t, 2, testutil.CollectAndCount(m.delegationDuration))
}

func TestMetrics_Link(t *testing.T) {
	m := attach(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"ok":true}}`)
	}))
	defer srv.Close()

	l := link.NewHTTP(srv.URL)
	defer l.Close()
	_, err := l.Execute(context.Background(), &link.Request{Query: "{ ok }"})
	require.NoError(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.linkRequests.WithLabelValues(srv.URL, OutcomeOK)))
	require.Equal(t, 0.0, testutil.ToFloat64(m.linkInFlight.WithLabelValues(srv.URL)))
	require.Equal(t, 1, testutil.CollectAndCount(m.linkDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := attach(t)
	eventbus.Publish(context.Background(), events.ServiceRegistered{Service: "users", Types: 3})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `stitchgraph_service_types{service="users"} 3`)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetrics_Detach(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	b := eventbus.New()
	eventbus.Use(b)
	t.Cleanup(func() { eventbus.Use(nil) })

	m.Attach(b)()
	eventbus.Publish(context.Background(), events.HTTPFinish{Status: http.StatusOK})
	require.Equal(t, 0, testutil.CollectAndCount(m.httpRequests))
}
