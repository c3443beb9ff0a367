package otel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	eventbus "github.com/hanpama/stitchgraph/internal/eventbus"
	events "github.com/hanpama/stitchgraph/internal/events"
	reqid "github.com/hanpama/stitchgraph/internal/reqid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSubscriber_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	unsubscribe := newSubscriber(tp.Tracer("test")).register()
	defer unsubscribe()

	ctx, rid := reqid.NewContext(context.Background())
	r := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Publish(ctx, events.HTTPStart{RequestID: rid, Request: r})
	eventbus.Publish(ctx, events.GraphQLStart{RequestID: rid, OperationName: "Q", OperationType: "query"})
	eventbus.Publish(ctx, events.LinkFinish{URI: "http://users/graphql", Status: 200, Duration: 5 * time.Millisecond})
	eventbus.Publish(ctx, events.DelegationFinish{Service: "users", Type: "Query", Field: "userById", Err: errors.New("refused")})
	eventbus.Publish(ctx, events.GraphQLFinish{RequestID: rid, OperationName: "Q", OperationType: "query"})
	eventbus.Publish(ctx, events.HTTPFinish{RequestID: rid, Request: r, Status: 200})

	spans := rec.Ended()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	require.Equal(t, []string{"link.request", "graphql.delegate", "graphql.operation", "http.request"}, names)

	linkSpan, delegate, op, httpSpan := spans[0], spans[1], spans[2], spans[3]
	require.Equal(t, op.SpanContext().SpanID(), linkSpan.Parent().SpanID())
	require.Equal(t, op.SpanContext().SpanID(), delegate.Parent().SpanID())
	require.Equal(t, httpSpan.SpanContext().SpanID(), op.Parent().SpanID())
	require.Equal(t, 5*time.Millisecond, linkSpan.EndTime().Sub(linkSpan.StartTime()))
	require.Equal(t, codes.Error, delegate.Status().Code)
	require.Equal(t, codes.Unset, linkSpan.Status().Code)
}

func TestSubscriber_Unsubscribe(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	newSubscriber(tp.Tracer("test")).register()()
	eventbus.Publish(context.Background(), events.LinkFinish{URI: "http://users/graphql"})
	require.Empty(t, rec.Ended())
}

func TestSetup_NoEndpoint(t *testing.T) {
	shutdown, err := Setup("", "stitchgraph")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
