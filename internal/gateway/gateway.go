// Package gateway assembles a stitched GraphQL system from a configuration.
//
// Build registers every configured service, compiles the extension
// document, merges the schemas and wires the stitching runtime into an
// executor. Any failure on the way is fatal: a System is either complete or
// not built at all.
package gateway

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hanpama/stitchgraph/internal/config"
	executor "github.com/hanpama/stitchgraph/internal/executor"
	extension "github.com/hanpama/stitchgraph/internal/extension"
	introspection "github.com/hanpama/stitchgraph/internal/introspection"
	language "github.com/hanpama/stitchgraph/internal/language"
	"github.com/hanpama/stitchgraph/internal/link"
	"github.com/hanpama/stitchgraph/internal/remote"
	schema "github.com/hanpama/stitchgraph/internal/schema"
	"github.com/hanpama/stitchgraph/internal/stitch"
	"go.uber.org/zap"
)

// System is a ready-to-serve stitched gateway. It is safe for concurrent use.
type System struct {
	Graph *stitch.Graph
	// Schema is the executable schema, including introspection types when
	// introspection is enabled.
	Schema   *schema.Schema
	Runtime  executor.Runtime
	Services []*remote.Descriptor

	validation    *language.Schema
	exec          *executor.Executor
	introspection bool
	closers       []io.Closer
}

type options struct {
	links         map[string]link.Link
	introspection bool
	retryInterval time.Duration
}

// Option configures Build.
type Option func(*options)

// WithLink makes Build reach service through l instead of HTTP.
func WithLink(service string, l link.Link) Option {
	return func(o *options) { o.links[service] = l }
}

// WithIntrospection enables or disables __schema and __type. Enabled by default.
func WithIntrospection(enabled bool) Option {
	return func(o *options) { o.introspection = enabled }
}

// WithRetryInterval sets the first wait between introspection attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) { o.retryInterval = d }
}

// Build creates the system described by cfg. The extension document and the
// bindings are checked before any service is contacted.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*System, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &options{
		links:         make(map[string]link.Link),
		introspection: true,
		retryInterval: backoff.DefaultInitialInterval,
	}
	for _, f := range opts {
		f(o)
	}

	exts, err := extension.Compile("extensions.graphql", cfg.Extensions)
	if err != nil {
		return nil, err
	}
	bindings, err := cfg.BindingSet()
	if err != nil {
		return nil, err
	}

	sys := &System{introspection: o.introspection}
	services := make([]remote.Service, 0, len(cfg.Services))
	for _, sc := range cfg.Services {
		l := o.links[sc.Name]
		if l == nil {
			hl := link.NewHTTP(sc.URL, linkOptions(sc)...)
			sys.closers = append(sys.closers, hl)
			l = hl
		}
		services = append(services, remote.Service{Name: sc.Name, URI: sc.URL, Link: l})
	}

	descs, err := remote.RegisterAll(ctx, services, retrying(cfg.Introspection, o.retryInterval, logger))
	if err != nil {
		_ = sys.Close()
		return nil, err
	}
	for _, d := range descs {
		logger.Info("registered service",
			zap.String("service", d.Name),
			zap.String("url", d.URI),
			zap.Int("types", len(d.Schema.Types)),
		)
	}

	g, err := stitch.Build(descs, exts, bindings)
	if err != nil {
		_ = sys.Close()
		return nil, err
	}
	validation, err := language.LoadSchema("stitched.graphql", schema.Render(g.Schema))
	if err != nil {
		_ = sys.Close()
		return nil, fmt.Errorf("gateway: merged schema does not validate: %w", err)
	}

	rt := stitch.NewRuntime(g,
		stitch.WithLogger(logger),
		stitch.WithMaxConcurrency(cfg.Delegation.MaxConcurrency),
	)
	var runtime executor.Runtime = rt
	sch := g.Schema
	if o.introspection {
		w := introspection.Wrap(rt, g.Schema)
		runtime, sch = w.Runtime, w.Schema
	}

	sys.Graph = g
	sys.Schema = sch
	sys.Runtime = runtime
	sys.Services = descs
	sys.validation = validation
	sys.exec = executor.NewExecutor(runtime, sch)
	logger.Info("schema stitched",
		zap.Int("services", len(descs)),
		zap.Int("extensions", len(exts)),
		zap.Int("types", len(g.Schema.Types)),
	)
	return sys, nil
}

func linkOptions(sc config.Service) []link.Option {
	var opts []link.Option
	if sc.Timeout > 0 {
		opts = append(opts, link.WithTimeout(sc.Timeout.Std()))
	}
	if sc.MaxResponseBytes > 0 {
		opts = append(opts, link.WithMaxResponseBytes(sc.MaxResponseBytes))
	}
	keys := make([]string, 0, len(sc.Headers))
	for k := range sc.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts = append(opts, link.WithHeader(k, sc.Headers[k]))
	}
	return opts
}

// retrying wraps remote.Register with the configured retry policy.
func retrying(policy config.Introspection, interval time.Duration, logger *zap.Logger) remote.RegisterFunc {
	return func(ctx context.Context, s remote.Service) (*remote.Descriptor, error) {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = interval
		return backoff.Retry(ctx,
			func() (*remote.Descriptor, error) {
				return remote.Register(ctx, s.Name, s.URI, s.Link)
			},
			backoff.WithBackOff(b),
			backoff.WithMaxTries(uint(policy.Retries)+1),
			backoff.WithMaxElapsedTime(policy.MaxElapsed.Std()),
			backoff.WithNotify(func(err error, next time.Duration) {
				logger.Warn("introspection failed, retrying",
					zap.String("service", s.Name),
					zap.Duration("backoff", next),
					zap.Error(err),
				)
			}),
		)
	}
}

// Prepare parses and validates query against the stitched schema.
func (s *System) Prepare(query string) (*language.QueryDocument, language.ErrorList) {
	doc, errs := language.LoadQuery(s.validation, query)
	if len(errs) > 0 {
		return nil, errs
	}
	if errs := reservedNames(doc); len(errs) > 0 {
		return nil, errs
	}
	if !s.introspection {
		if name := introspectionField(doc); name != "" {
			return nil, language.ErrorList{{Message: fmt.Sprintf("introspection is disabled: %s is not available", name)}}
		}
	}
	return doc, nil
}

// ExecuteDocument runs a prepared document.
func (s *System) ExecuteDocument(ctx context.Context, doc *language.QueryDocument, operationName string, variables map[string]any) *executor.ExecutionResult {
	return s.exec.ExecuteRequest(ctx, doc, operationName, variables, nil)
}

// Execute prepares and runs query. Validation errors are returned as the
// result's errors with no data.
func (s *System) Execute(ctx context.Context, query, operationName string, variables map[string]any) *executor.ExecutionResult {
	doc, errs := s.Prepare(query)
	if len(errs) > 0 {
		res := &executor.ExecutionResult{}
		for _, e := range errs {
			res.Errors = append(res.Errors, executor.GraphQLError{Message: e.Message, Extensions: e.Extensions})
		}
		return res
	}
	return s.ExecuteDocument(ctx, doc, operationName, variables)
}

// SDL renders the stitched schema without introspection types.
func (s *System) SDL() string { return schema.Render(s.Graph.Schema) }

// Close releases the connections of the HTTP links Build created.
func (s *System) Close() error {
	for _, c := range s.closers {
		_ = c.Close()
	}
	return nil
}

// introspectionField returns the first root introspection field of doc.
func introspectionField(doc *language.QueryDocument) string {
	var visit func(set language.SelectionSet) string
	visit = func(set language.SelectionSet) string {
		for _, sel := range set {
			switch sel := sel.(type) {
			case *language.Field:
				if sel.Name == "__schema" || sel.Name == "__type" {
					return sel.Name
				}
			case *language.InlineFragment:
				if name := visit(sel.SelectionSet); name != "" {
					return name
				}
			case *language.FragmentSpread:
				if def := doc.Fragments.ForName(sel.Name); def != nil {
					if name := visit(def.SelectionSet); name != "" {
						return name
					}
				}
			}
		}
		return ""
	}
	for _, op := range doc.Operations {
		if name := visit(op.SelectionSet); name != "" {
			return name
		}
	}
	return ""
}

// reservedNames rejects aliases and variables that would collide with the
// keys and variables added to delegated queries.
func reservedNames(doc *language.QueryDocument) language.ErrorList {
	const prefix = remote.ArgumentVariablePrefix
	var errs language.ErrorList
	var visit func(set language.SelectionSet)
	visit = func(set language.SelectionSet) {
		for _, sel := range set {
			switch sel := sel.(type) {
			case *language.Field:
				if strings.HasPrefix(sel.Alias, prefix) {
					errs = append(errs, language.ErrorAt(sel.Position, "alias %q uses the reserved prefix %s", sel.Alias, prefix))
				}
				visit(sel.SelectionSet)
			case *language.InlineFragment:
				visit(sel.SelectionSet)
			}
		}
	}
	for _, op := range doc.Operations {
		for _, vd := range op.VariableDefinitions {
			if strings.HasPrefix(vd.Variable, prefix) {
				errs = append(errs, language.ErrorAt(vd.Position, "variable $%s uses the reserved prefix %s", vd.Variable, prefix))
			}
		}
		visit(op.SelectionSet)
	}
	for _, f := range doc.Fragments {
		visit(f.SelectionSet)
	}
	return errs
}
