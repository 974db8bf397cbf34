// Package svcerr defines the errors shared by the service control client and
// the run-as-service runtime.
package svcerr

import (
	"errors"
	"fmt"
)

var (
	// ErrPlatformUnsupported indicates the service control manager is not
	// available on this platform
	ErrPlatformUnsupported = errors.New("platform unsupported")

	ErrNotFound       = errors.New("service not found")
	ErrAlreadyExists  = errors.New("service already exists")
	ErrInvalidConfig  = errors.New("invalid service configuration")
	ErrAccessDenied   = errors.New("access denied")
	ErrAlreadyRunning = errors.New("service already running")
	ErrNotRunning     = errors.New("service not running")

	// ErrBusy indicates the service cannot accept the request in its
	// current state, e.g. it is already marked for deletion
	ErrBusy = errors.New("service busy")

	// ErrRegistrationFailed indicates the process could not register as the
	// running instance of a service
	ErrRegistrationFailed = errors.New("service registration failed")

	// ErrTimeout indicates a service did not reach the awaited state in time
	ErrTimeout = errors.New("timeout waiting for service state")

	// ErrUnexpectedState indicates a service left its pending state for a
	// state other than the awaited one
	ErrUnexpectedState = errors.New("unexpected service state")
)

// PlatformError reports that the current platform has no service control
// manager backend.
type PlatformError struct {
	Platform string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("only windows platform supported, not %s", e.Platform)
}

// Is makes errors.Is(err, ErrPlatformUnsupported) match.
func (e *PlatformError) Is(target error) bool {
	return target == ErrPlatformUnsupported
}

// OpError is an error raised locally for an operation on a named service.
type OpError struct {
	Op   string
	Name string
	Err  error
}

func (e *OpError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
