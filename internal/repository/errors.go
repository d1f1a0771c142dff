package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrSerialization — транзакция проиграла конкурентной записи, можно повторить.
	ErrSerialization = errors.New("serialization failure")
	// ErrTxTimeout — транзакция не уложилась в дедлайн (ожидание блокировки или запрос).
	ErrTxTimeout = errors.New("transaction timed out")
)

// ConstraintError is a storage-level invariant rejecting a commit.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint %q violated: %v", e.Constraint, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// TranslateError maps driver errors onto the repository sentinels and leaves
// every other error untouched.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", ErrSerialization, pgErr.Message)
		case "55P03", "57014": // lock_not_available, query_canceled
			return fmt.Errorf("%w: %s", ErrTxTimeout, pgErr.Message)
		case "23514", "23P01", "23505": // check_violation, exclusion_violation, unique_violation
			return &ConstraintError{Constraint: pgErr.ConstraintName, Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTxTimeout, err)
	}
	return err
}
