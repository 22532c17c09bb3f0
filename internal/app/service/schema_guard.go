package service

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE classes consulted by the guard.
const (
	pgUndefinedColumn      = "42703"
	pgIntegrityClassPrefix = "23"
	pgConnectionClass      = "08"
)

// Textual signatures of a missing-column failure, for drivers and test
// doubles that do not surface SQLSTATE codes.
var missingColumnSignatures = []string{
	"does not exist",
	"unknown column",
	"no such column",
	"undefined column",
}

// IsSchemaMismatch reports whether an insert failed because the target
// table is missing a column the code expects. This is the only error
// class that licenses the reduced-column retry; constraint violations,
// connectivity failures, and everything else must surface unchanged.
func IsSchemaMismatch(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUndefinedColumn
	}

	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "column") && !strings.Contains(msg, "field") {
		return false
	}
	for _, sig := range missingColumnSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// IsConstraintViolation reports whether an insert hit a data-integrity
// constraint. Kept separate from IsSchemaMismatch so the recorder can
// never mask an integrity failure as a schema issue.
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgIntegrityClassPrefix)
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint") || strings.Contains(msg, "duplicate key")
}

// IsConnectivityFailure reports whether the store itself was unreachable.
func IsConnectivityFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgConnectionClass)
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "broken pipe")
}
