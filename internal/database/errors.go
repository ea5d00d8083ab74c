package database

import (
	"errors"

	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes that map to something other than an upstream failure.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// TranslateError maps a store error onto the taxonomy. entity names the
// thing being read or written and ends up in the reason.
func TranslateError(err error, entity string) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(entity + " not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict(entity + " already exists").Wrap(err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperr.NotFound("referenced record for " + entity + " not found").Wrap(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.Conflict(entity + " already exists").Wrap(err)
		case pgForeignKeyViolation:
			return apperr.NotFound("referenced record for " + entity + " not found").Wrap(err)
		case pgCheckViolation:
			return apperr.Validation("invalid "+entity, nil).Wrap(err)
		case pgSerializationFailure, pgDeadlockDetected:
			return apperr.Conflict("concurrent update on " + entity + ", retry").Wrap(err)
		}
	}

	return apperr.Upstream("failed to access "+entity, err)
}
