package remote

import (
	"errors"
	"fmt"
)

// ExecutionError reports a head-node command that produced output on
// standard error. Head-node CLIs sometimes exit zero while printing a real
// error, so any stderr makes the command a failure. Execution errors are
// surfaced to the caller, never retried.
type ExecutionError struct {
	Stderr string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("remote command wrote to stderr: %s", e.Stderr)
}

// ConnectivityError wraps a transient transport failure: a failed dial,
// a dropped session, a handshake timeout. The retry wrapper absorbs these
// up to its attempt ceiling.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cluster connection failed: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is a transport failure worth retrying.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
