package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// translateTxError folds lock and serialization failures of either driver
// into ErrConcurrentModification.
func translateTxError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
	}

	return err
}
