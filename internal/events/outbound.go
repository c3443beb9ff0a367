package events

import "time"

// LinkStart is emitted before a document is sent to a remote service.
type LinkStart struct {
	URI           string
	OperationName string
}

// LinkFinish is emitted after a remote service answered or the call failed.
// Status is the HTTP status code, zero when no response was received.
type LinkFinish struct {
	URI           string
	OperationName string
	Status        int
	Err           error
	Duration      time.Duration
}

// ServiceRegistered is emitted once a service's schema has been introspected.
type ServiceRegistered struct {
	Service  string
	URI      string
	Types    int
	Duration time.Duration
}

// DelegationFinish is emitted after a field was resolved by a remote
// service. Type and Field name the gateway field, Service the remote.
type DelegationFinish struct {
	Service  string
	Type     string
	Field    string
	Err      error
	Duration time.Duration
}
