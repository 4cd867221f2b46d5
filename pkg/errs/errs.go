package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an operational failure by behavior, not by source.
type Kind string

const (
	// KindResourceBusy signals an action-state guard conflict. No Update
	// row exists for the rejected attempt.
	KindResourceBusy Kind = "ResourceBusy"
	// KindPermissionDenied signals the target exists but the caller lacks
	// the required permission level.
	KindPermissionDenied Kind = "PermissionDenied"
	// KindNotFound signals an id or name that does not resolve.
	KindNotFound Kind = "NotFound"
	// KindInvalidConfig signals a semantic validation failure.
	KindInvalidConfig Kind = "InvalidConfig"
	// KindInterpolation signals a missing variable/secret or malformed token.
	KindInterpolation Kind = "Interpolation"
	// KindRemoteTransport signals an unreachable periphery, a timeout, or a
	// non-2xx agent response.
	KindRemoteTransport Kind = "RemoteTransport"
	// KindProvider signals a cloud SDK or git provider failure.
	KindProvider Kind = "Provider"
	// KindStorage signals a database failure.
	KindStorage Kind = "Storage"
)

// Error carries a failure kind, the operation or stage that produced it,
// and the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and the operation that produced it.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf constructs a kinded error from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Busy reports an action-state conflict on the given target.
func Busy(op, resourceKind, id string) *Error {
	return Newf(KindResourceBusy, op, "%s %s is busy: an operation is already in progress", resourceKind, id)
}

// NotFound reports an unresolvable id or name.
func NotFound(resourceKind, nameOrID string) *Error {
	return Newf(KindNotFound, "resolve "+resourceKind, "%s %q not found", resourceKind, nameOrID)
}

// PermissionDenied reports a failed permission check.
func PermissionDenied(op, resourceKind, id, level string) *Error {
	return Newf(KindPermissionDenied, op, "requires %s permission on %s %s", level, resourceKind, id)
}

// InvalidConfig reports a semantic validation failure.
func InvalidConfig(op, format string, args ...any) *Error {
	return Newf(KindInvalidConfig, op, format, args...)
}

// Interpolation reports a variable or secret substitution failure.
func Interpolation(op, format string, args ...any) *Error {
	return Newf(KindInterpolation, op, format, args...)
}

// Transport wraps a periphery communication failure.
func Transport(op string, err error) *Error {
	return New(KindRemoteTransport, op, err)
}

// Provider wraps a cloud SDK or git provider failure.
func Provider(op string, err error) *Error {
	return New(KindProvider, op, err)
}

// Storage wraps a database failure.
func Storage(op string, err error) *Error {
	return New(KindStorage, op, err)
}

// KindOf extracts the kind from anywhere in err's chain. Unclassified
// errors report an empty kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error's kind to the status code the HTTP layer
// should answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindResourceBusy:
		return http.StatusConflict
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidConfig, KindInterpolation:
		return http.StatusBadRequest
	case KindRemoteTransport:
		return http.StatusBadGateway
	case KindProvider, KindStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
