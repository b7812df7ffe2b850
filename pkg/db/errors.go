package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation     = "23505"
	pgSerializationFailed = "40001"
	pgDeadlockDetected    = "40P01"
)

// pgError extracts the SQLSTATE and constraint from either Postgres driver.
func pgError(err error) (code, constraint string, ok bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}

// IsUniqueViolation reports whether err is a unique constraint violation from
// Postgres or sqlite. A non-empty constraintName must also match. sqlite
// reports the offending columns instead of the index name, so for it the
// violation also matches when every one of columns is named in the message.
func IsUniqueViolation(err error, constraintName string, columns ...string) bool {
	if err == nil {
		return false
	}
	if code, constraint, ok := pgError(err); ok {
		return code == pgUniqueViolation && (constraintName == "" || constraint == constraintName)
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if constraintName == "" || strings.Contains(msg, constraintName) {
		return true
	}
	return len(columns) > 0 && namesColumns(msg, columns)
}

func namesColumns(msg string, columns []string) bool {
	_, detail, ok := strings.Cut(msg, "UNIQUE constraint failed:")
	if !ok {
		return false
	}
	named := make(map[string]bool)
	for _, field := range strings.Split(detail, ",") {
		field = strings.TrimSpace(field)
		if i := strings.LastIndex(field, "."); i >= 0 {
			field = field[i+1:]
		}
		named[field] = true
	}
	for _, column := range columns {
		if !named[column] {
			return false
		}
	}
	return true
}

// IsRetryableTx reports whether the whole transaction can be replayed: a
// serialization failure, a deadlock victim, or a busy sqlite file.
func IsRetryableTx(err error) bool {
	if err == nil {
		return false
	}
	if code, _, ok := pgError(err); ok {
		return code == pgSerializationFailed || code == pgDeadlockDetected
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
