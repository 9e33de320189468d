// Package faults defines the error taxonomy shared across the retrieval
// core. Callers distinguish caller-input problems (ConfigurationError,
// InvalidDateFormatError), the legitimate empty result (NotFoundError), and
// operational faults (TransportError) with errors.As, so a benign "no log
// today" is never confused with a broken remote host.
package faults

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates a bad or missing project, module, or
// credential entry. Not retryable; the caller's input is wrong.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// InvalidDateFormatError indicates the caller supplied an unparseable date.
type InvalidDateFormatError struct {
	Input string
}

func (e *InvalidDateFormatError) Error() string {
	return fmt.Sprintf("invalid date format %q: use YYYY-MM-DD or DD-MM-YYYY", e.Input)
}

// NotFoundError indicates the remote directory or pattern yielded no
// candidate file. This is an empty result, not a system fault.
type NotFoundError struct {
	Pattern string
}

func (e *NotFoundError) Error() string {
	if e.Pattern == "" {
		return "no matching log file found"
	}
	return fmt.Sprintf("no log file matching %q", e.Pattern)
}

// TransportError indicates a network, authentication, or remote-command
// failure. Connect reports whether the failure happened while establishing
// the session (connect failures cover auth, unreachable host, and timeout).
// The wrapped error never contains credentials.
type TransportError struct {
	Op      string
	Host    string
	Connect bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Host, e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewConnectFailure wraps a session-establishment failure.
func NewConnectFailure(host string, err error) *TransportError {
	return &TransportError{Op: "connect", Host: host, Connect: true, Err: err}
}

// NewTransportError wraps a failure of an already-established session.
func NewTransportError(op, host string, err error) *TransportError {
	return &TransportError{Op: op, Host: host, Err: err}
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsInvalidDate reports whether err is an InvalidDateFormatError.
func IsInvalidDate(err error) bool {
	var de *InvalidDateFormatError
	return errors.As(err, &de)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsTransport reports whether err is a TransportError of any kind.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsConnectFailure reports whether err is a connect-phase TransportError.
func IsConnectFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Connect
}
