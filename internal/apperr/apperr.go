// Package apperr defines the error kinds surfaced by guidevault operations.
//
// Every error carries a Kind so transports can map it to a status code, and a
// human-readable message that callers may match on ("invalid url",
// "already exists", "not found").
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindDuplicate
	KindNotFound
	KindSsrfBlocked
	KindNetwork
	KindParse
	KindDatabase
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindSsrfBlocked:
		return "ssrf_blocked"
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	case KindDatabase:
		return "database"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a classified error. Msg is the caller-facing text; Err is the
// optional underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind, so that
// errors.Is(err, apperr.ErrNotFound) matches any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrDuplicate   = &Error{Kind: KindDuplicate}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrSsrfBlocked = &Error{Kind: KindSsrfBlocked}
	ErrNetwork     = &Error{Kind: KindNetwork}
	ErrParse       = &Error{Kind: KindParse}
	ErrDatabase    = &Error{Kind: KindDatabase}
	ErrConflict    = &Error{Kind: KindConflict}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Duplicate reports a uniqueness collision; the message always ends in
// "already exists".
func Duplicate(format string, args ...any) error {
	return &Error{Kind: KindDuplicate, Msg: fmt.Sprintf(format, args...) + " already exists"}
}

// NotFound reports an unknown entity; the message always ends in "not found".
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...) + " not found"}
}

func SsrfBlocked(format string, args ...any) error {
	return &Error{Kind: KindSsrfBlocked, Msg: fmt.Sprintf(format, args...)}
}

func Network(msg string, err error) error {
	return &Error{Kind: KindNetwork, Msg: msg, Err: err}
}

func Parse(msg string, err error) error {
	return &Error{Kind: KindParse, Msg: msg, Err: err}
}

// Database wraps a storage failure. Already classified errors pass through
// unchanged so a not-found from inside a transaction keeps its kind.
func Database(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindDatabase, Msg: op, Err: err}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps err to the status code the JSON API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicate, KindConflict:
		return http.StatusConflict
	case KindSsrfBlocked, KindParse:
		return http.StatusUnprocessableEntity
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
