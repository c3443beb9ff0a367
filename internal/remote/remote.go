// Package remote acquires the type systems of remote GraphQL services and
// forwards delegated sub-queries to them.
//
// A Descriptor is built once per service at startup by Register and is
// read-only afterwards, so it can be shared by every request.
package remote

import (
	"context"
	"fmt"
	"time"

	eventbus "github.com/hanpama/stitchgraph/internal/eventbus"
	events "github.com/hanpama/stitchgraph/internal/events"
	"github.com/hanpama/stitchgraph/internal/link"
	schema "github.com/hanpama/stitchgraph/internal/schema"
	"golang.org/x/sync/errgroup"
)

// Service names one configured remote service.
type Service struct {
	Name string
	URI  string
	Link link.Link
}

// Descriptor is the introspected view of one remote service.
type Descriptor struct {
	Name   string
	URI    string
	Link   link.Link
	Schema *schema.Schema
}

// Register introspects the service behind l. It sends one request and does
// not retry; callers that want retries wrap it.
func Register(ctx context.Context, name, uri string, l link.Link) (*Descriptor, error) {
	resp, err := l.Execute(ctx, &link.Request{Query: IntrospectionQuery, OperationName: "IntrospectionQuery"})
	if err != nil {
		return nil, &IntrospectionError{Service: name, URI: uri, Err: err}
	}
	if len(resp.Errors) > 0 {
		return nil, &IntrospectionError{Service: name, URI: uri, Err: link.JoinErrors(resp.Errors)}
	}
	sch, err := decodeIntrospection(resp.Data)
	if err != nil {
		return nil, &IntrospectionError{Service: name, URI: uri, Err: err}
	}
	return &Descriptor{Name: name, URI: uri, Link: l, Schema: sch}, nil
}

// RegisterFunc registers a single service.
type RegisterFunc func(ctx context.Context, s Service) (*Descriptor, error)

// RegisterAll registers services concurrently and returns the descriptors in
// the order of services. The first failure cancels the remaining ones and is
// returned. A nil register uses Register.
func RegisterAll(ctx context.Context, services []Service, register RegisterFunc) ([]*Descriptor, error) {
	if register == nil {
		register = func(ctx context.Context, s Service) (*Descriptor, error) {
			return Register(ctx, s.Name, s.URI, s.Link)
		}
	}
	seen := make(map[string]bool, len(services))
	for _, s := range services {
		if seen[s.Name] {
			return nil, fmt.Errorf("remote: service %q configured twice", s.Name)
		}
		seen[s.Name] = true
	}

	out := make([]*Descriptor, len(services))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range services {
		g.Go(func() error {
			start := time.Now()
			d, err := register(gctx, s)
			if err != nil {
				return err
			}
			out[i] = d
			eventbus.Publish(ctx, events.ServiceRegistered{
				Service:  d.Name,
				URI:      d.URI,
				Types:    len(d.Schema.Types),
				Duration: time.Since(start),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
