package db_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"storefront_ledger/internal/db"
	"storefront_ledger/internal/domain"
	"storefront_ledger/internal/testutil"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	lockWait := &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	syntax := &mysql.MySQLError{Number: 1064, Message: "syntax error"}

	assert.NoError(t, db.Classify(nil))
	assert.ErrorIs(t, db.Classify(deadlock), domain.ErrTransactionConflict)
	assert.ErrorIs(t, db.Classify(fmt.Errorf("wrapped: %w", lockWait)), domain.ErrTransactionConflict)
	assert.ErrorIs(t, db.Classify(errors.New("database is locked")), domain.ErrTransactionConflict)
	assert.NotErrorIs(t, db.Classify(syntax), domain.ErrTransactionConflict)
	assert.True(t, domain.IsRetryable(db.Classify(deadlock)))
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, db.IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, db.IsDuplicateKey(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.True(t, db.IsDuplicateKey(errors.New("UNIQUE constraint failed: accounts.email")))
	assert.False(t, db.IsDuplicateKey(nil))
	assert.False(t, db.IsDuplicateKey(errors.New("boom")))

	// Both SQLite and MySQL paths surface through TranslateError
	gdb := testutil.NewDB(t)
	testutil.SeedAccount(t, gdb, "dup@example.com", 0, domain.RoleUser)
	err := gdb.Create(&domain.Account{Email: "dup@example.com", Role: domain.RoleUser}).Error
	assert.True(t, db.IsDuplicateKey(err))
}

func TestInTx_RollsBackOnError(t *testing.T) {
	gdb := testutil.NewDB(t)
	acct := testutil.SeedAccount(t, gdb, "a@example.com", 10, domain.RoleUser)
	r := db.NewRunner(gdb, 2)
	boom := errors.New("boom")

	err := r.InTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Account{}).Where("id = ?", acct.ID).Update("balance", decimal.NewFromInt(99)).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "10.00", testutil.Balance(t, gdb, acct.ID).StringFixed(2))
}

func TestInTx_RetriesConflicts(t *testing.T) {
	prev := db.RetryBackoff
	db.RetryBackoff = time.Millisecond
	t.Cleanup(func() { db.RetryBackoff = prev })

	gdb := testutil.NewDB(t)
	r := db.NewRunner(gdb, 2)

	calls := 0
	err := r.InTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = r.InTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		return &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout"}
	})
	assert.ErrorIs(t, err, domain.ErrTransactionConflict)
	assert.Equal(t, 3, calls)

	calls = 0
	err = r.InTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		return domain.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 1, calls)
}

func TestInTx_StopsRetryingWhenContextDone(t *testing.T) {
	prev := db.RetryBackoff
	db.RetryBackoff = time.Second
	t.Cleanup(func() { db.RetryBackoff = prev })

	gdb := testutil.NewDB(t)
	r := db.NewRunner(gdb, 5)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.InTx(ctx, func(tx *gorm.DB) error {
		calls++
		cancel()
		return &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	})
	assert.ErrorIs(t, err, domain.ErrTransactionConflict)
	assert.Equal(t, 1, calls)
}
