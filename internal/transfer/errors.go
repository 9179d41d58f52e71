package transfer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Error kinds. Every error returned for a refused operation matches exactly
// one of these with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
)

// Error is a refused operation with a message fit for the caller.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ConflictError lists assets held by other transfers, keyed by asset ID with
// the holding transfer ID as value.
type ConflictError struct {
	Assets map[int64]int64
}

func (e *ConflictError) Error() string {
	ids := make([]int64, 0, len(e.Assets))
	for id := range e.Assets {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("asset %d is already locked by transfer %d", id, e.Assets[id])
	}
	return strings.Join(parts, "; ")
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// IsPermanent reports whether err is a refusal that retrying cannot fix.
func IsPermanent(err error) bool {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrInvalidState, ErrForbidden, ErrValidation} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
