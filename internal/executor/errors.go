package executor

import (
	"errors"
	"reflect"
)

// ExecutionResult is the response of one operation. Data is nil only when
// execution could not start, e.g. for unknown operations or bad variables.
type ExecutionResult struct {
	Data   any            `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// GraphQLError is a located execution error.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string { return e.Message }

// ExtendedError is implemented by resolver errors that carry GraphQL error
// extensions, e.g. a stable error code or the name of the failing service.
type ExtendedError interface {
	error
	Extensions() map[string]any
}

func (s *executionState) addError(message string, path Path) {
	s.errors = append(s.errors, GraphQLError{Message: message, Path: path})
}

// addFieldError records a resolver error at path. Extensions found anywhere
// in the error chain are kept.
func (s *executionState) addFieldError(err error, path Path) {
	gerr := GraphQLError{Message: err.Error(), Path: path}
	var ext ExtendedError
	if errors.As(err, &ext) {
		gerr.Extensions = ext.Extensions()
	}
	s.errors = append(s.errors, gerr)
}

// addNestedErrors records errors reported below the field at path.
func (s *executionState) addNestedErrors(errs []FieldError, path Path) {
	for _, e := range errs {
		at := make(Path, 0, len(path)+len(e.Path))
		at = append(at, path...)
		at = append(at, e.Path...)
		s.errors = append(s.errors, GraphQLError{Message: e.Message, Path: at, Extensions: e.Extensions})
	}
}

func (s *executionState) hasErrorAtPath(path Path) bool {
	for _, err := range s.errors {
		if reflect.DeepEqual(err.Path, path) {
			return true
		}
	}
	return false
}
