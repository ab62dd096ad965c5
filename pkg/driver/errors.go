package driver

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned when a driver does not implement an
// optional capability, such as change streams.
var ErrNotSupported = errors.New("operation not supported by driver")

// ConnectionError wraps any failure to establish or maintain the
// connection to the store. The underlying cause is preserved for
// errors.Is / errors.As; the ODM never retries on its own.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// WrapConnection wraps an error as a ConnectionError unless it already
// is one.
func WrapConnection(err error) error {
	if err == nil {
		return nil
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return &ConnectionError{Cause: err}
}
