// Package events holds the values published on the eventbus while the
// gateway serves traffic. Inbound events follow a client request through
// the gateway; outbound events follow the calls it makes to services.
package events

import (
	"net/http"
	"time"
)

// HTTPStart is published when the gateway endpoint receives a request,
// after a request id has been assigned.
type HTTPStart struct {
	RequestID string
	Request   *http.Request
}

// HTTPFinish is published once the response has been written.
type HTTPFinish struct {
	RequestID string
	Request   *http.Request
	Status    int
	Duration  time.Duration
}

// GraphQLStart is published for every operation of a request, batched
// operations included, before it is validated.
type GraphQLStart struct {
	RequestID     string
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish carries the errors of the response, validation errors
// included. OperationType is empty when the document could not be parsed.
type GraphQLFinish struct {
	RequestID     string
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Duration      time.Duration
}
