package postgres

import (
	"context"
	"database/sql"
)

// withTx runs fn in a transaction on the primary. fn's errors are returned
// unchanged so callers classify them where the statement is known.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.primary.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).WithField("operation", op).Warn("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}
