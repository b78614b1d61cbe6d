package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/statusexport/statusexport/internal/catalog"
)

// classify maps a driver error onto the catalog taxonomy. Server-side errors
// mean the catalog answered; anything else, plus connection-exception and
// operator-intervention SQLSTATE classes, means it could not be reached.
func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s: not found", catalog.ErrLookup, op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") {
			return fmt.Errorf("%w: %s: %w", catalog.ErrUnavailable, op, err)
		}
		return fmt.Errorf("%w: %s: %w", catalog.ErrLookup, op, err)
	}
	return fmt.Errorf("%w: %s: %w", catalog.ErrUnavailable, op, err)
}
