package services

import (
	"errors"
	"fmt"

	"github.com/inkwell-comics/modsvc/internal/store"
)

var (
	// ErrInvalidTransition means the requested edge is not in the workflow graph.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrReasonRequired is an ErrInvalidTransition for a blank reason.
	ErrReasonRequired = fmt.Errorf("%w: reason is required", ErrInvalidTransition)

	ErrSelfReport       = errors.New("cannot report yourself")
	ErrDuplicateReport  = errors.New("a pending report against this user already exists")
	ErrDuplicateAccount = errors.New("username or email already in use")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")

	// ErrConflict means another actor changed the record first.
	ErrConflict = store.ErrConflict

	ErrNotFound = store.ErrNotFound
)
