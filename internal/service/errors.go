package service

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-assess/internal/repository"
)

// Domain errors. Operations wrap them with context; callers match with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("not authorized")
	ErrInvalidState  = errors.New("invalid state")
	ErrNotStarted    = errors.New("exam has not started")
	ErrExamEnded     = errors.New("exam has ended")
	ErrAttemptLimit  = errors.New("attempt limit reached")
	ErrConflict      = errors.New("conflict")
)

// storeErr lifts storage errors into domain errors, keeping what as context.
func storeErr(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repository.ErrNoTransition):
		return fmt.Errorf("%w: %s", ErrInvalidState, what)
	case errors.Is(err, repository.ErrLimitReached):
		return fmt.Errorf("%w: %s", ErrAttemptLimit, what)
	case errors.Is(err, repository.ErrDuplicate), errors.Is(err, repository.ErrReferenced):
		return fmt.Errorf("%w: %s", ErrConflict, what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
