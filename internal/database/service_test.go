package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupTestService(t *testing.T) (*Service, func()) {
	t.Helper()

	cfg := models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	}

	service, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create database service: %v", err)
	}

	return service, service.Close
}

func createTestUser(t *testing.T, service *Service, name, email, referredBy string) *models.User {
	t.Helper()

	user, err := service.CreateUser(context.Background(), "", name, email, referredBy)
	if err != nil {
		t.Fatalf("Failed to create test user %s: %v", email, err)
	}
	return user
}

func TestNewService_RejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()

	if _, err := NewService(ctx, models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}); err == nil {
		t.Error("Expected error for empty path")
	}
	if _, err := NewService(ctx, models.DatabaseConfig{Path: "x.db", PingTimeout: time.Second}); err == nil {
		t.Error("Expected error for zero max open connections")
	}
	if _, err := NewService(ctx, models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1}); err == nil {
		t.Error("Expected error for zero ping timeout")
	}
}

func TestCreditAndDebitBalance(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "Alice", "alice@example.com", "")

	if err := service.CreditBalance(ctx, user.Id, "USDT", decimal.RequireFromString("10.50"), "tx-credit-1", "deposit reward"); err != nil {
		t.Fatalf("CreditBalance failed: %v", err)
	}
	if err := service.DebitBalance(ctx, user.Id, "USDT", decimal.RequireFromString("4.25"), "tx-debit-1", "withdrawal"); err != nil {
		t.Fatalf("DebitBalance failed: %v", err)
	}

	balance, err := service.GetUserBalance(ctx, user.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	expected := decimal.RequireFromString("6.25")
	if !balance.Equal(expected) {
		t.Errorf("Expected balance %s, got %s", expected, balance)
	}
}

func TestCreditBalance_RejectsNonPositiveAmount(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "Alice", "alice@example.com", "")

	if err := service.CreditBalance(ctx, user.Id, "USDT", decimal.Zero, "tx1", ""); err == nil {
		t.Error("Expected error crediting zero amount")
	}
	if err := service.DebitBalance(ctx, user.Id, "USDT", decimal.NewFromInt(-1), "tx2", ""); err == nil {
		t.Error("Expected error debiting negative amount")
	}
}

func TestDebitBalance_Insufficient(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "Alice", "alice@example.com", "")

	if err := service.CreditBalance(ctx, user.Id, "USDT", decimal.NewFromInt(5), "tx1", ""); err != nil {
		t.Fatalf("CreditBalance failed: %v", err)
	}

	err := service.DebitBalance(ctx, user.Id, "USDT", decimal.NewFromInt(6), "tx2", "")
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	// The failed debit must not have touched the balance.
	balance, err := service.GetUserBalance(ctx, user.Id, "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected balance 5, got %s", balance)
	}
}

func TestGetUserBalance_UnknownAccountIsZero(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	balance, err := service.GetUserBalance(context.Background(), "nobody", "USDT")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", balance)
	}
}

func TestReconcileUserBalance(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "Alice", "alice@example.com", "")

	if err := service.CreditBalance(ctx, user.Id, "USDT", decimal.RequireFromString("3.33"), "tx1", ""); err != nil {
		t.Fatalf("CreditBalance failed: %v", err)
	}
	if err := service.CreditBalance(ctx, user.Id, "USDT", decimal.RequireFromString("0.01"), "tx2", ""); err != nil {
		t.Fatalf("CreditBalance failed: %v", err)
	}
	if err := service.DebitBalance(ctx, user.Id, "USDT", decimal.RequireFromString("1.34"), "tx3", ""); err != nil {
		t.Fatalf("DebitBalance failed: %v", err)
	}

	if err := service.ReconcileUserBalance(ctx, user.Id, "USDT"); err != nil {
		t.Errorf("ReconcileUserBalance failed: %v", err)
	}
}
