// Package pg bootstraps the PostgreSQL connection pool (pgx) and applies
// goose schema migrations at startup. It also exposes small error
// classification helpers so callers can translate driver errors into
// domain errors without importing pgconn everywhere.
package pg
