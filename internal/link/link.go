// Package link sends GraphQL documents to remote services.
//
// A Link is the only way the gateway talks to a service: introspection at
// startup and delegated sub-queries at request time both go through it.
// HTTPLink implements GraphQL over HTTP; Func adapts an in-process function,
// which tests use to stand up fake services.
package link

import (
	"context"
	"fmt"
	"strings"
)

// Request is one GraphQL operation addressed to a remote service.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is the decoded body a service answered with. Numbers inside Data
// are json.Number so no precision is lost on the way through the gateway.
type Response struct {
	Data       map[string]any `json:"data"`
	Errors     []RemoteError  `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// RemoteError is a GraphQL error reported by a remote service.
type RemoteError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e RemoteError) Error() string { return e.Message }

// Link executes GraphQL requests against a single remote service.
// Implementations must be safe for concurrent use.
type Link interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts an ordinary function to the Link interface.
type Func func(ctx context.Context, req *Request) (*Response, error)

func (f Func) Execute(ctx context.Context, req *Request) (*Response, error) { return f(ctx, req) }

// JoinErrors folds remote errors into one error, or returns nil.
func JoinErrors(errs []RemoteError) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
