package db

import (
	"strings"
	"testing"
	"time"
)

func TestWithStatementTimeoutURLForm(t *testing.T) {
	got := withStatementTimeout("postgres://u:p@host:5432/db?sslmode=disable", 2*time.Second)
	if !strings.Contains(got, "statement_timeout%3D2000") {
		t.Fatalf("timeout option missing from DSN: %q", got)
	}
	if !strings.Contains(got, "sslmode=disable") {
		t.Fatalf("existing params dropped: %q", got)
	}
}

func TestWithStatementTimeoutKeywordForm(t *testing.T) {
	got := withStatementTimeout("host=localhost user=postgres dbname=smartqr", 5*time.Second)
	if !strings.Contains(got, "options='-c statement_timeout=5000'") {
		t.Fatalf("timeout option missing from keyword DSN: %q", got)
	}
}

func TestWithStatementTimeoutZeroLeavesDSN(t *testing.T) {
	dsn := "postgres://u:p@host/db"
	if got := withStatementTimeout(dsn, 0); got != dsn {
		t.Fatalf("zero timeout mutated DSN: %q", got)
	}
}
