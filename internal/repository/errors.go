package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Storage errors returned by every repository, independent of the backend.
var (
	ErrNotFound     = errors.New("record not found")
	ErrNoTransition = errors.New("record is not in the expected state")
	ErrLimitReached = errors.New("attempt limit reached")
	ErrDuplicate    = errors.New("duplicate record")
	ErrReferenced   = errors.New("record is still referenced")
)

// translate maps driver errors onto the storage errors above.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicate
		case "23503":
			return ErrReferenced
		}
	}
	return err
}
