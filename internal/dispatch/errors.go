package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/isometry/adis/internal/credentials"
	"github.com/isometry/adis/internal/ldap"
)

// ErrorKind classifies a failed dispatch for the caller.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindConnection    ErrorKind = "connection"
	KindOperation     ErrorKind = "operation"
	KindNotFound      ErrorKind = "not_found"
	KindInternal      ErrorKind = "internal"
)

// internalErrorText replaces the message of internal failures at the boundary.
const internalErrorText = "internal server error"

// Error is the caller-facing failure of a dispatch.
type Error struct {
	Kind    ErrorKind
	Method  Method
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: %s", e.Method, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PublicMessage is the text returned to callers; internal detail is withheld.
func (e *Error) PublicMessage() string {
	if e.Kind == KindInternal {
		return internalErrorText
	}
	return e.Message
}

func newError(kind ErrorKind, method Method, err error) *Error {
	return &Error{
		Kind:    kind,
		Method:  method,
		Message: err.Error(),
		Err:     err,
	}
}

// classify maps a resolver, connector or executor failure to its kind.
func classify(method Method, err error) *Error {
	var dispatchErr *Error
	if errors.As(err, &dispatchErr) {
		return dispatchErr
	}

	if errors.Is(err, credentials.ErrUnknownDomain) {
		return newError(KindConfiguration, method, err)
	}

	var connErr *ldap.ConnectionError
	if errors.As(err, &connErr) {
		return newError(KindConnection, method, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindOperation, Method: method, Message: "operation timed out: " + err.Error(), Err: err}
	}

	if errors.Is(err, ldap.ErrNotConnected) {
		return newError(KindInternal, method, err)
	}

	var ldapErr *ldap.LDAPError
	if errors.As(err, &ldapErr) {
		switch ldapErr.Category {
		case ldap.ErrorCategoryNotFound:
			return newError(KindNotFound, method, err)
		default:
			// Directory-side rejections, syntax and constraint errors included,
			// happen after bind and are operation failures.
			return newError(KindOperation, method, err)
		}
	}

	return newError(KindInternal, method, err)
}
