package stitch

import (
	"fmt"
	"strings"
)

// TypeNameConflictError reports two services defining the same type with
// different shapes, or the same root field.
type TypeNameConflictError struct {
	Type     string
	Field    string
	Services []string
}

func (e *TypeNameConflictError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("stitch: %s.%s is defined by more than one service: %s", e.Type, e.Field, strings.Join(e.Services, ", "))
	}
	return fmt.Sprintf("stitch: type %s is defined differently by %s", e.Type, strings.Join(e.Services, ", "))
}

// UnresolvedOwnerError reports an extension field no binding assigns to a
// known service.
type UnresolvedOwnerError struct {
	Type    string
	Field   string
	Service string
}

func (e *UnresolvedOwnerError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("stitch: %s.%s is bound to unknown service %q", e.Type, e.Field, e.Service)
	}
	return fmt.Sprintf("stitch: no binding says which service answers %s.%s", e.Type, e.Field)
}

// InvalidBindingError reports an extension or binding that cannot be served.
type InvalidBindingError struct {
	Type   string
	Field  string
	Reason string
}

func (e *InvalidBindingError) Error() string {
	return fmt.Sprintf("stitch: %s.%s: %s", e.Type, e.Field, e.Reason)
}

// FragmentResolutionError reports a parent value that lacks fields its
// binding requires. It means the parent was fetched without the binding's
// fragment, which is a bug in the gateway rather than bad data.
type FragmentResolutionError struct {
	Type    string
	Field   string
	Missing []string
}

func (e *FragmentResolutionError) Error() string {
	return fmt.Sprintf("stitch: %s.%s: parent is missing required fields %s", e.Type, e.Field, strings.Join(e.Missing, ", "))
}

func (e *FragmentResolutionError) Extensions() map[string]any {
	return map[string]any{"code": "FRAGMENT_RESOLUTION_FAILED"}
}
