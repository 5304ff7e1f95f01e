package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront_ledger/internal/domain"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MySQL server error numbers
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// RetryBackoff is the base delay between conflict retries, multiplied by the attempt number.
var RetryBackoff = 25 * time.Millisecond

// Runner executes closures inside database transactions
type Runner struct {
	DB         *gorm.DB
	MaxRetries int
}

// NewRunner returns a Runner retrying conflicts up to maxRetries times
func NewRunner(db *gorm.DB, maxRetries int) *Runner {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Runner{DB: db, MaxRetries: maxRetries}
}

// InTx runs fn in one transaction. Any error returned by fn rolls back every
// statement fn issued. Lock contention is reported as domain.ErrTransactionConflict
// and the whole closure is re-run from scratch.
func (r *Runner) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	for attempt := 0; ; attempt++ {
		err := Classify(r.DB.WithContext(ctx).Transaction(fn))
		if err == nil || !domain.IsRetryable(err) || attempt >= r.MaxRetries {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("Transaction conflict, retrying")
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, ctx.Err())
		case <-time.After(RetryBackoff * time.Duration(attempt+1)):
		}
	}
}

// Classify maps driver-level lock errors onto domain.ErrTransactionConflict
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == mysqlLockWaitTimeout || myErr.Number == mysqlDeadlock) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	}
	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	}
	return err
}

// IsDuplicateKey reports a unique index violation
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotFound reports gorm's missing-row error
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
