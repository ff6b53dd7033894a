// Package apperr is the error taxonomy shared by the REST handlers and the
// realtime relay. Every error that reaches a caller carries a Kind and a
// stable, user-facing message; the wrapped cause is only ever logged.
package apperr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindPersistence
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error     { return New(KindValidation, msg) }
func Authentication(msg string) *Error { return New(KindAuthentication, msg) }
func Authorization(msg string) *Error  { return New(KindAuthorization, msg) }
func NotFound(msg string) *Error       { return New(KindNotFound, msg) }
func Conflict(msg string) *Error       { return New(KindConflict, msg) }
func RateLimited(msg string) *Error    { return New(KindRateLimited, msg) }

// Persistence wraps a storage failure. The message shown to callers is
// fixed so driver text never leaks.
func Persistence(err error) *Error {
	return Wrap(KindPersistence, "Server Error", err)
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the user-facing text for err. Persistence failures and
// errors built outside this package always read "Server Error".
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindPersistence && e.Message != "" {
		return e.Message
	}
	return "Server Error"
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
