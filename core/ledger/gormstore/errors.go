package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"receipt-ledger/core/ledger"
)

const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// classify maps a database error onto the ledger error set.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ledger.ErrNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlLockWaitTimeout:
			// InnoDB only rolls back the waiting statement.
			return fmt.Errorf("%s: %w: %w", op, ledger.ErrConcurrentModification, err)
		case mysqlDeadlock:
			return fmt.Errorf("%s: %w: %w", op, ledger.ErrTxAborted, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ledger.ErrStorageUnavailable, err)
}
