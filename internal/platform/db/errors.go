package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/islandmassage/booking/internal/platform/apperr"
)

const (
	codeExclusionViolation  = "23P01"
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// Constraint names that callers match against.
const (
	ConstraintNoDoubleBooking = "bookings_no_double_booking"
)

// MapError translates a driver error into the application error taxonomy.
// what names the operation, e.g. "load booking".
func MapError(err error, what string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	msg := fmt.Sprintf(what, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return &apperr.Error{Kind: apperr.KindNotFound, Msg: msg + ": not found", Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeExclusionViolation, codeUniqueViolation:
			return &apperr.Error{Kind: apperr.KindConflict, Msg: msg + ": conflicts with existing record", Err: err}
		case codeForeignKeyViolation:
			return &apperr.Error{Kind: apperr.KindValidation, Msg: msg + ": referenced record does not exist", Err: err}
		case codeCheckViolation:
			return &apperr.Error{Kind: apperr.KindValidation, Msg: msg + ": value rejected by constraint " + pgErr.ConstraintName, Err: err}
		}
	}
	return apperr.Upstream(err, "%s", msg)
}

// IsConstraint reports whether err is a violation of the named constraint.
func IsConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == name
}
