package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/store"

	"github.com/shopspring/decimal"
)

func intentParams(userId string, amount string, now time.Time) store.CreateIntentParams {
	expected := decimal.RequireFromString(amount)
	return store.CreateIntentParams{
		UserId:         userId,
		ExpectedAmount: expected,
		BaseAmount:     expected,
		Category:       "Silver",
		Network:        "TRX",
		CreatedAt:      now,
		ExpiresAt:      now.Add(30 * time.Minute),
	}
}

func TestCreateIntent(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "Alice", "alice@example.com", "")
	now := time.Now().UTC()

	intent, err := service.CreateIntent(ctx, intentParams(user.Id, "3.44", now))
	if err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	if intent.Status != models.IntentStatusWaiting {
		t.Errorf("Expected status waiting, got %s", intent.Status)
	}
	if !intent.ExpectedAmount.Equal(decimal.RequireFromString("3.44")) {
		t.Errorf("Expected amount 3.44, got %s", intent.ExpectedAmount)
	}

	active, err := service.GetActiveIntent(ctx, user.Id, now)
	if err != nil {
		t.Fatalf("GetActiveIntent failed: %v", err)
	}
	if active.Id != intent.Id {
		t.Errorf("Expected active intent %s, got %s", intent.Id, active.Id)
	}
}

func TestCreateIntent_ActiveIntentExists(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "Alice", "alice@example.com", "")
	now := time.Now().UTC()

	if _, err := service.CreateIntent(ctx, intentParams(user.Id, "3.44", now)); err != nil {
		t.Fatalf("First CreateIntent failed: %v", err)
	}

	_, err := service.CreateIntent(ctx, intentParams(user.Id, "3.45", now))
	if !errors.Is(err, store.ErrActiveIntentExists) {
		t.Errorf("Expected ErrActiveIntentExists, got %v", err)
	}
}

func TestCreateIntent_AmountConflict(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	alice := createTestUser(t, service, "Alice", "alice@example.com", "")
	bob := createTestUser(t, service, "Bob", "bob@example.com", "")
	now := time.Now().UTC()

	if _, err := service.CreateIntent(ctx, intentParams(alice.Id, "3.44", now)); err != nil {
		t.Fatalf("First CreateIntent failed: %v", err)
	}

	_, err := service.CreateIntent(ctx, intentParams(bob.Id, "3.44", now))
	if !errors.Is(err, store.ErrAmountConflict) {
		t.Errorf("Expected ErrAmountConflict, got %v", err)
	}
}

func TestCompleteIntent(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "Alice", "alice@example.com", "")
	now := time.Now().UTC()

	created, err := service.CreateIntent(ctx, intentParams(user.Id, "3.44", now))
	if err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	completed, err := service.CompleteIntent(ctx, store.CompleteIntentParams{
		ExpectedAmount: decimal.RequireFromString("3.44"),
		Network:        "TRX",
		ExternalTxId:   "ext-tx-1",
		Now:            now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("CompleteIntent failed: %v", err)
	}

	if completed.Id != created.Id {
		t.Errorf("Expected intent %s, got %s", created.Id, completed.Id)
	}
	if completed.Status != models.IntentStatusCompleted {
		t.Errorf("Expected status completed, got %s", completed.Status)
	}
	if completed.ExternalTxId != "ext-tx-1" {
		t.Errorf("Expected external tx id ext-tx-1, got %s", completed.ExternalTxId)
	}
	if completed.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	found, err := service.FindIntentByExternalTxId(ctx, "ext-tx-1")
	if err != nil {
		t.Fatalf("FindIntentByExternalTxId failed: %v", err)
	}
	if found.Id != created.Id {
		t.Errorf("Expected intent %s, got %s", created.Id, found.Id)
	}
}

func TestCompleteIntent_NoMatch(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "Alice", "alice@example.com", "")
	now := time.Now().UTC()

	if _, err := service.CreateIntent(ctx, intentParams(user.Id, "3.44", now)); err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	// Wrong amount
	_, err := service.CompleteIntent(ctx, store.CompleteIntentParams{
		ExpectedAmount: decimal.RequireFromString("3.45"),
		Network:        "TRX",
		ExternalTxId:   "ext-tx-1",
		Now:            now,
	})
	if !errors.Is(err, store.ErrNoMatchingIntent) {
		t.Errorf("Expected ErrNoMatchingIntent for wrong amount, got %v", err)
	}

	// Wrong network
	_, err = service.CompleteIntent(ctx, store.CompleteIntentParams{
		ExpectedAmount: decimal.RequireFromString("3.44"),
		Network:        "ETH",
		ExternalTxId:   "ext-tx-1",
		Now:            now,
	})
	if !errors.Is(err, store.ErrNoMatchingIntent) {
		t.Errorf("Expected ErrNoMatchingIntent for wrong network, got %v", err)
	}
}

func TestCompleteIntent_InexactAmount(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "Alice", "alice@example.com", "")
	now := time.Now().UTC()

	if _, err := service.CreateIntent(ctx, intentParams(user.Id, "3.44", now)); err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	// 3.444 rounds to the 3.44 lookup key but is not the amount the
	// user was told to send.
	_, err := service.CompleteIntent(ctx, store.CompleteIntentParams{
		ExpectedAmount: decimal.RequireFromString("3.444"),
		Network:        "TRX",
		ExternalTxId:   "ext-tx-1",
		Now:            now,
	})
	if !errors.Is(err, store.ErrNoMatchingIntent) {
		t.Errorf("Expected ErrNoMatchingIntent for inexact amount, got %v", err)
	}

	// Trailing zeros are the same number and still settle.
	completed, err := service.CompleteIntent(ctx, store.CompleteIntentParams{
		ExpectedAmount: decimal.RequireFromString("3.4400"),
		Network:        "TRX",
		ExternalTxId:   "ext-tx-2",
		Now:            now,
	})
	if err != nil {
		t.Fatalf("CompleteIntent failed for equal amount: %v", err)
	}
	if completed.Status != models.IntentStatusCompleted {
		t.Errorf("Expected status completed, got %s", completed.Status)
	}
}

func TestCompleteIntent_ExternalTxIdUsedOnce(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	alice := createTestUser(t, service, "Alice", "alice@example.com", "")
	bob := createTestUser(t, service, "Bob", "bob@example.com", "")
	now := time.Now().UTC()

	if _, err := service.CreateIntent(ctx, intentParams(alice.Id, "3.44", now)); err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}
	if _, err := service.CreateIntent(ctx, intentParams(bob.Id, "3.45", now)); err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	if _, err := service.CompleteIntent(ctx, store.CompleteIntentParams{
		ExpectedAmount: decimal.RequireFromString("3.44"),
		Network:        "TRX",
		ExternalTxId:   "ext-tx-1",
		Now:            now,
	}); err != nil {
		t.Fatalf("First CompleteIntent failed: %v", err)
	}

	// The same exchange transaction cannot settle a second intent.
	_, err := service.CompleteIntent(ctx, store.CompleteIntentParams{
		ExpectedAmount: decimal.RequireFromString("3.45"),
		Network:        "TRX",
		ExternalTxId:   "ext-tx-1",
		Now:            now,
	})
	if !errors.Is(err, store.ErrNoMatchingIntent) {
		t.Errorf("Expected ErrNoMatchingIntent for reused external tx id, got %v", err)
	}
}

func TestExpireIntents(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "Alice", "alice@example.com", "")
	now := time.Now().UTC()

	if _, err := service.CreateIntent(ctx, intentParams(user.Id, "3.44", now)); err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	later := now.Add(31 * time.Minute)
	expired, err := service.ExpireIntents(ctx, later)
	if err != nil {
		t.Fatalf("ExpireIntents failed: %v", err)
	}
	if expired != 1 {
		t.Errorf("Expected 1 expired intent, got %d", expired)
	}

	// Expired intents no longer settle.
	_, err = service.CompleteIntent(ctx, store.CompleteIntentParams{
		ExpectedAmount: decimal.RequireFromString("3.44"),
		Network:        "TRX",
		ExternalTxId:   "ext-tx-1",
		Now:            later,
	})
	if !errors.Is(err, store.ErrNoMatchingIntent) {
		t.Errorf("Expected ErrNoMatchingIntent after expiry, got %v", err)
	}

	// The expiry frees the amount and the user for a fresh reservation.
	if _, err := service.CreateIntent(ctx, intentParams(user.Id, "3.44", later)); err != nil {
		t.Errorf("Expected fresh intent after expiry, got %v", err)
	}
}
