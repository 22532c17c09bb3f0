package service

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsSchemaMismatch_PgUndefinedColumn(t *testing.T) {
	err := &pgconn.PgError{Code: "42703", Message: `column "utm_source" of relation "scan_events" does not exist`}
	if !IsSchemaMismatch(err) {
		t.Fatal("expected SQLSTATE 42703 to classify as schema mismatch")
	}
}

func TestIsSchemaMismatch_TextualSignatures(t *testing.T) {
	mismatches := []error{
		errors.New(`column "ip_hash" of relation "scan_events" does not exist`),
		errors.New("unknown column 'utm_source' in 'field list'"),
		errors.New("no such column: geo_city"),
		errors.New("undefined column referenced by insert: field raw_meta"),
	}
	for _, err := range mismatches {
		if !IsSchemaMismatch(err) {
			t.Fatalf("expected mismatch classification for %q", err)
		}
	}
}

func TestIsSchemaMismatch_OtherErrorsExcluded(t *testing.T) {
	others := []error{
		nil,
		&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"},
		&pgconn.PgError{Code: "08006", Message: "connection failure"},
		errors.New("connection refused"),
		errors.New("record not found"),
		// "does not exist" without a column mention is a different failure.
		errors.New(`relation "scan_events" does not exist in this transaction`),
	}
	for _, err := range others {
		if IsSchemaMismatch(err) {
			t.Fatalf("expected %v not to classify as schema mismatch", err)
		}
	}
}

func TestIsConstraintViolation(t *testing.T) {
	if !IsConstraintViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected 23505 to classify as constraint violation")
	}
	if !IsConstraintViolation(errors.New("duplicate key value violates unique constraint")) {
		t.Fatal("expected textual duplicate-key to classify as constraint violation")
	}
	if IsConstraintViolation(&pgconn.PgError{Code: "42703"}) {
		t.Fatal("missing column must not classify as constraint violation")
	}
}

func TestIsConnectivityFailure(t *testing.T) {
	if !IsConnectivityFailure(&pgconn.PgError{Code: "08006"}) {
		t.Fatal("expected class 08 to classify as connectivity failure")
	}
	if !IsConnectivityFailure(errors.New("dial tcp: connection refused")) {
		t.Fatal("expected textual refusal to classify as connectivity failure")
	}
	if IsConnectivityFailure(&pgconn.PgError{Code: "42703"}) {
		t.Fatal("missing column must not classify as connectivity failure")
	}
}
