// Package testutil builds throwaway databases and fixtures for package tests.
package testutil

import (
	"testing"

	"storefront_ledger/internal/db"
	"storefront_ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with the full schema.
// The pool holds one connection, so concurrent transactions run one after
// another and never contend for a row lock. Lock statements are asserted
// against the MySQL dialect with sqlmock in the ledger tests.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

// SeedAccount inserts an account with the given balance
func SeedAccount(t testing.TB, gdb *gorm.DB, email string, balance int64, role string) domain.Account {
	t.Helper()
	acct := domain.Account{
		Email:       email,
		DisplayName: email,
		Balance:     decimal.NewFromInt(balance),
		Role:        role,
	}
	if err := gdb.Create(&acct).Error; err != nil {
		t.Fatalf("seed account %s: %v", email, err)
	}
	return acct
}

// SeedFederatedAccount inserts an account linked to an external UID
func SeedFederatedAccount(t testing.TB, gdb *gorm.DB, uid, email string, balance int64) domain.Account {
	t.Helper()
	acct := domain.Account{
		ExternalUID: &uid,
		Email:       email,
		Balance:     decimal.NewFromInt(balance),
		Role:        domain.RoleUser,
	}
	if err := gdb.Create(&acct).Error; err != nil {
		t.Fatalf("seed federated account %s: %v", email, err)
	}
	return acct
}

// SeedProduct inserts an active product at the given price
func SeedProduct(t testing.TB, gdb *gorm.DB, name string, price int64) domain.Product {
	t.Helper()
	p := domain.Product{Name: name, Price: decimal.NewFromInt(price), Active: true}
	if err := gdb.Create(&p).Error; err != nil {
		t.Fatalf("seed product %s: %v", name, err)
	}
	return p
}

// Balance reads the stored balance of an account
func Balance(t testing.TB, gdb *gorm.DB, accountID uint) decimal.Decimal {
	t.Helper()
	var acct domain.Account
	if err := gdb.First(&acct, accountID).Error; err != nil {
		t.Fatalf("load account %d: %v", accountID, err)
	}
	return acct.Balance
}
