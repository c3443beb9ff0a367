package remote

import "fmt"

// IntrospectionError reports that a service's type system could not be
// acquired. It is fatal at startup.
type IntrospectionError struct {
	Service string
	URI     string
	Err     error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspect %s (%s): %v", e.Service, e.URI, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// DelegationError reports a failed delegated sub-query. Timeout is set when
// the service did not answer before the deadline.
type DelegationError struct {
	Service string
	Field   string
	Timeout bool
	Err     error
}

func (e *DelegationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("delegate %s to %s: timed out: %v", e.Field, e.Service, e.Err)
	}
	return fmt.Sprintf("delegate %s to %s: %v", e.Field, e.Service, e.Err)
}

func (e *DelegationError) Unwrap() error { return e.Err }

// Extensions is merged into the GraphQL error of the failed field.
func (e *DelegationError) Extensions() map[string]any {
	return map[string]any{
		"code":    "DELEGATION_FAILED",
		"service": e.Service,
		"timeout": e.Timeout,
	}
}
