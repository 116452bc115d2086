package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is a log-only view of an error chain; it is never returned to callers.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Category   Category `json:"category,omitempty"`
	Retryable  bool     `json:"retryable"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Category = te.Category()
		d.Retryable = te.Retryable()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	if code, constraint, table, detail, message, ok := PostgresFields(err); ok {
		d.PGCode = code
		d.PGConstraint = constraint
		d.PGTable = table
		d.PGDetail = detail
		d.PGMessage = message
	}
	return d
}

// PostgresFields extracts the server error fields from either driver's error type.
func PostgresFields(err error) (code, constraint, table, detail, message string, ok bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail, pgxErr.Message, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail, pqErr.Message, true
	}
	return "", "", "", "", "", false
}
