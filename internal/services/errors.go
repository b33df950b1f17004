package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"task-assign/backend/internal/repositories"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindReference
	KindImmutable
	KindConflict
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindReference:
		return "reference"
	case KindImmutable:
		return "immutable"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is; every *Error matches the sentinel of its kind.
var (
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	ErrReference  = &Error{Kind: KindReference, Message: "unresolved reference"}
	ErrImmutable  = &Error{Kind: KindImmutable, Message: "completed tasks cannot be modified"}
	ErrConflict   = &Error{Kind: KindConflict, Message: "conflict"}
	ErrStorage    = &Error{Kind: KindStorage, Message: "storage failure"}
)

// Error is the only error type the services return. Fields is populated for
// validation failures, keyed by JSON field name.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + e.Fields[k]
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func notFound(entity string) *Error {
	return newError(KindNotFound, entity+" not found")
}

func invalidField(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: map[string]string{field: msg}}
}

// KindOf returns the kind of err, KindStorage for anything that is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// wrapStoreError classifies an error coming out of a repository or a plan. Typed errors
// raised inside plan steps pass through unchanged.
func wrapStoreError(entity string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, repositories.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: entity + " not found", Err: err}
	case errors.Is(err, repositories.ErrInvalidQuery):
		return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	case errors.Is(err, repositories.ErrDuplicate):
		return &Error{Kind: KindConflict, Message: "email already exists", Err: err}
	default:
		return &Error{Kind: KindStorage, Message: "storage failure", Err: err}
	}
}
