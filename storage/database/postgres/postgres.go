// Package postgres provides the PostgreSQL repositories backing the core
// domain services.
package postgres

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core"
)

// getExec returns the executor handed in by the service, typically an open
// transaction, defaulting to the repository's own DB.
func getExec(db core.DB, exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 && exec[0] != nil {
		return exec[0]
	}
	return db
}

// trapNoRowsErr swaps sql.ErrNoRows for the domain's own not-found error.
func trapNoRowsErr(err, alt error) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return alt
	}
	return err
}

const (
	uniqueViolation     = "unique_violation"
	foreignKeyViolation = "foreign_key_violation"
)

func isPqError(err error, codeName string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code.Name() == codeName
}
