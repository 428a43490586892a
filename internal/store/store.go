package store

import (
	"context"
	"errors"
	"time"

	"bmx-rewards-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrUserNotFound           = errors.New("user not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrActiveIntentExists     = errors.New("an active deposit intent already exists")
	ErrAmountConflict         = errors.New("expected amount already reserved by a waiting intent")
	ErrNoMatchingIntent       = errors.New("no matching waiting intent")
	ErrWithdrawalNotFound     = errors.New("withdrawal not found")
)

// CreateIntentParams contains the parameters for persisting a deposit intent.
type CreateIntentParams struct {
	UserId         string
	ExpectedAmount decimal.Decimal
	BaseAmount     decimal.Decimal
	Category       string
	Network        string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// CompleteIntentParams identifies the waiting intent a confirmed deposit
// event settles. ExpectedAmount and Network form the correlation key.
type CompleteIntentParams struct {
	ExpectedAmount decimal.Decimal
	Network        string
	ExternalTxId   string
	Now            time.Time
}

// CreateWithdrawalParams contains the parameters for persisting a
// withdrawal record after a successful external submission.
type CreateWithdrawalParams struct {
	UserId       string
	Amount       decimal.Decimal
	Address      string
	Network      string
	ExternalTxId string
}

// LedgerStore defines the contract the settlement engine, the intent
// service and the withdrawal processor require from persistence.
type LedgerStore interface {
	// --- Users ---
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, userId, name, email, referredBy string) (*models.User, error)
	SetCategory(ctx context.Context, userId, category string) error
	MarkEligible(ctx context.Context, userId, category string) error
	RecordReferralReward(ctx context.Context, referrerId, referredId string, amount decimal.Decimal) error
	CountReferralRewards(ctx context.Context, userId string) (int, error)

	// --- Deposit intents ---
	CreateIntent(ctx context.Context, params CreateIntentParams) (*models.DepositIntent, error)
	GetActiveIntent(ctx context.Context, userId string, now time.Time) (*models.DepositIntent, error)
	FindIntentByExternalTxId(ctx context.Context, externalTxId string) (*models.DepositIntent, error)
	CompleteIntent(ctx context.Context, params CompleteIntentParams) (*models.DepositIntent, error)
	ExpireIntents(ctx context.Context, now time.Time) (int64, error)

	// --- Balances ---
	GetUserBalance(ctx context.Context, userId, asset string) (decimal.Decimal, error)
	CreditBalance(ctx context.Context, userId, asset string, amount decimal.Decimal, externalTxId, reference string) error
	DebitBalance(ctx context.Context, userId, asset string, amount decimal.Decimal, externalTxId, reference string) error
	GetTransactionHistory(ctx context.Context, userId, asset string, limit, offset int) ([]models.Transaction, error)
	ReconcileUserBalance(ctx context.Context, userId, asset string) error

	// --- Withdrawals ---
	CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*models.WithdrawalRecord, error)
	GetWithdrawal(ctx context.Context, withdrawalId string) (*models.WithdrawalRecord, error)
	CountWithdrawals(ctx context.Context, userId string) (int, error)
	ListWithdrawals(ctx context.Context, userId string, limit, offset int) ([]models.WithdrawalRecord, error)
	UpdateWithdrawalAdminStatus(ctx context.Context, withdrawalId, status string) (*models.WithdrawalRecord, error)
	UpdateWithdrawalGatewayStatus(ctx context.Context, externalTxId, status string) error

	// --- Lifecycle ---
	Close()
}
