// Package apperr defines the error kinds shared by the catalog, session,
// report and notification layers so that handlers can map them to HTTP
// status codes without knowing where they came from.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindRender
	KindTransport
	KindStorage
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindRender:
		return "render"
	case KindTransport:
		return "transport"
	case KindStorage:
		return "storage"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrRender     = &Error{Kind: KindRender}
	ErrTransport  = &Error{Kind: KindTransport}
	ErrStorage    = &Error{Kind: KindStorage}
	ErrIO         = &Error{Kind: KindIO}
)

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Render(op, format string, args ...any) error {
	return &Error{Kind: KindRender, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Transport(op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Msg: "mail dispatch failed", Err: err}
}

func Storage(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Msg: "storage failure", Err: err}
}

func IO(op string, err error) error {
	return &Error{Kind: KindIO, Op: op, Msg: "write failed", Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the user-facing message of the first *Error in the chain
// without the wrapped cause, falling back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}
