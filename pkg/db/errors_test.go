package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite3 "github.com/mattn/go-sqlite3"
)

func TestIsUniqueViolationPostgres(t *testing.T) {
	err := fmt.Errorf("create order: %w", &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "idx_orders_order_number",
	})

	if !IsUniqueViolation(err, "idx_orders_order_number") {
		t.Error("expected match on named constraint")
	}
	if !IsUniqueViolation(err, "") {
		t.Error("expected match without constraint name")
	}
	if IsUniqueViolation(err, "idx_products_sku") {
		t.Error("unexpected match on different constraint")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("foreign key violation must not match")
	}
}

func TestIsUniqueViolationSQLite(t *testing.T) {
	err := fmt.Errorf("create product: %w", sqlite3.Error{
		Code:         sqlite3.ErrConstraint,
		ExtendedCode: sqlite3.ErrConstraintUnique,
	})

	if !IsUniqueViolation(err, "idx_products_sku") {
		t.Error("sqlite unique violation should match any constraint name")
	}

	notNull := sqlite3.Error{
		Code:         sqlite3.ErrConstraint,
		ExtendedCode: sqlite3.ErrConstraintNotNull,
	}
	if IsUniqueViolation(notNull, "") {
		t.Error("not-null violation must not match")
	}
}

func TestIsUniqueViolationIgnoresOtherErrors(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Error("nil error must not match")
	}
	if IsUniqueViolation(errors.New("duplicate key value"), "") {
		t.Error("plain error text must not match")
	}
}
