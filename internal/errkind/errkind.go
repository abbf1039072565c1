// Package errkind classifies failures into the categories the CLI maps
// to exit codes and user-facing suggestions.
package errkind

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the failure category of an error.
type Kind int

const (
	Unknown Kind = iota
	Dns
	Timeout
	Tls
	Network
	Api
	Config
	Measurement
)

// String returns the category name used in logs and output.
func (k Kind) String() string {
	switch k {
	case Dns:
		return "dns"
	case Timeout:
		return "timeout"
	case Tls:
		return "tls"
	case Network:
		return "network"
	case Api:
		return "api"
	case Config:
		return "config"
	case Measurement:
		return "measurement"
	default:
		return "unknown"
	}
}

// ExitCode returns the process exit code for the category.
//
// Network-level failures (dns, timeout, tls, network) share code 1; api
// failures are 2, configuration mistakes 3, and partial measurement
// failures 4. Anything unclassified exits 99.
func (k Kind) ExitCode() int {
	switch k {
	case Dns, Timeout, Tls, Network:
		return 1
	case Api:
		return 2
	case Config:
		return 3
	case Measurement:
		return 4
	default:
		return 99
	}
}

// Description returns a short human-readable description of the
// category.
func (k Kind) Description() string {
	switch k {
	case Dns:
		return "DNS resolution failed"
	case Timeout:
		return "operation timed out"
	case Tls:
		return "TLS handshake failed"
	case Network:
		return "network connection failed"
	case Api:
		return "server returned an error"
	case Config:
		return "invalid configuration"
	case Measurement:
		return "measurement incomplete"
	default:
		return "unexpected error"
	}
}

// Suggestion returns advice to print alongside the error, or "" when
// there is nothing useful to say.
func (k Kind) Suggestion() string {
	switch k {
	case Dns:
		return "check your DNS settings and network connection"
	case Timeout:
		return "the network may be slow or the server unreachable; try again"
	case Tls:
		return "check your system clock and certificate store"
	case Network:
		return "check your network connection and firewall settings"
	case Api:
		return "the measurement server may be having issues; try again later"
	case Config:
		return "run with -h to review the available options"
	default:
		return ""
	}
}

// Classify maps an error to a Kind by inspecting its message text.
//
// Matching on message substrings is fragile against upstream wording
// changes, but it classifies errors from every layer (resolver, dialer,
// TLS, HTTP status lines) without each layer having to wrap its
// failures. An Error created by this package keeps its explicit kind.
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}

	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "dns", "resolve", "no such host"):
		return Dns
	case containsAny(msg, "timeout", "timed out", "deadline"):
		return Timeout
	case containsAny(msg, "tls", "ssl", "certificate", "handshake"):
		return Tls
	case containsAny(msg,
		"connection refused", "connection reset",
		"network unreachable", "host unreachable",
		"no route", "broken pipe"):
		return Network
	case containsAny(msg, "status: 4", "status: 5", "api", "server error"):
		return Api
	default:
		return Unknown
	}
}

func containsAny(msg string, substrings ...string) bool {
	for _, s := range substrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Error is a failure with an explicit category, optionally wrapping a
// lower-level cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New returns an Error with the given category and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf returns an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error with the given category wrapping err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCodeFor returns the exit code for err via Classify. A nil error
// maps to 0.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return Classify(err).ExitCode()
}
