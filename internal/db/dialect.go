package db

import (
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/ncruces/go-sqlite3"
)

// Dialect covers the few places where Postgres and SQLite SQL differ.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d == SQLite {
		return sq.Question
	}
	return sq.Dollar
}

// Builder returns a squirrel builder with the dialect's placeholders.
func (d Dialect) Builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder())
}

// Time converts t into the value stored for timestamp columns. SQLite keeps
// RFC 3339 UTC text, which sorts in time order.
func (d Dialect) Time(t time.Time) any {
	t = t.UTC().Truncate(time.Second)
	if d == SQLite {
		return t.Format(time.RFC3339)
	}
	return t
}

// DayExpr buckets a timestamp column into a YYYY-MM-DD UTC string.
func (d Dialect) DayExpr(column string) string {
	if d == SQLite {
		return "substr(" + column + ", 1, 10)"
	}
	return "to_char(" + column + " AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface {
		SQLState() string
	}
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == pgerrcode.UniqueViolation
	}
	return errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) || errors.Is(err, sqlite3.CONSTRAINT_PRIMARYKEY)
}
