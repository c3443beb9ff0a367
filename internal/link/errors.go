package link

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrResponseTooLarge is returned when a service answers with a body larger
// than Options.MaxResponseBytes.
var ErrResponseTooLarge = errors.New("response too large")

// StatusError reports a non-2xx answer from a remote service.
type StatusError struct {
	URI    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("link: %s answered HTTP %d", e.URI, e.Status)
	}
	return fmt.Sprintf("link: %s answered HTTP %d: %s", e.URI, e.Status, e.Body)
}

// IsTimeout reports whether err was caused by a deadline, either the
// request context's or the HTTP client's.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
