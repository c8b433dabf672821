package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Kind classifies an error into one of a closed set of categories that
// handlers map to HTTP status codes and fallback behavior.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Forbidden
	Validation
	Unavailable
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Validation:
		return "validation"
	case Unavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is an error carrying a Kind
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return e.Msg + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Msg
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a formatted error of the given kind
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a kind and message
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from an error, classifying untagged errors
// by inspecting driver and network error types.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	if IsUnavailable(err) {
		return Unavailable
	}

	return Internal
}

// MySQL server error numbers that mean the server cannot service
// connections right now, as opposed to rejecting a particular query.
var unavailableMySQLCodes = map[uint16]bool{
	1040: true, // ER_CON_COUNT_ERROR: too many connections
	1044: true, // ER_DBACCESS_DENIED_ERROR at connect
	1045: true, // ER_ACCESS_DENIED_ERROR at connect
	1053: true, // ER_SERVER_SHUTDOWN
	1129: true, // ER_HOST_IS_BLOCKED
	1130: true, // ER_HOST_NOT_PRIVILEGED
	1203: true, // ER_TOO_MANY_USER_CONNECTIONS
}

// Substrings that identify connection-level failures surfaced by the
// net package or the driver before a MySQL error number exists.
var unavailableSubstrings = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"invalid connection",
	"bad connection",
	"database is closed",
	"dial tcp",
	"no such host",
}

// IsUnavailable reports whether err means the primary store could not be
// reached at all. This is the predicate that decides between surfacing a
// failure and degrading to cache/outbox behavior.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == Unavailable
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return unavailableMySQLCodes[myErr.Number]
	}

	msg := strings.ToLower(err.Error())
	for _, s := range unavailableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}
