package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deposit intent lifecycle states. Terminal states are immutable.
const (
	IntentStatusWaiting   = "waiting"
	IntentStatusCompleted = "completed"
	IntentStatusExpired   = "expired"
)

// Administrative withdrawal states, driven by operator review.
const (
	WithdrawalAdminPending  = "Pending"
	WithdrawalAdminApproved = "Approved"
	WithdrawalAdminRejected = "Rejected"
)

// Gateway-driven withdrawal states, advanced by the exchange.
// These live alongside the administrative state and never merge with it.
const (
	WithdrawalGatewayProcessing = "Processing"
	WithdrawalGatewayCompleted  = "Completed"
	WithdrawalGatewayFailed     = "Failed"
)

// User represents a user in the system
type User struct {
	Id         string          `db:"id"`
	Name       string          `db:"name"`
	Email      string          `db:"email"`
	Category   string          `db:"category"`
	Eligible   bool            `db:"eligible"`
	Level      int             `db:"level"`
	Points     decimal.Decimal `db:"points"`
	ReferredBy string          `db:"referred_by"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// DepositIntent is a server-issued promise of a unique expected deposit
// amount, used to correlate an anonymous on-chain deposit with a user.
type DepositIntent struct {
	Id             string          `db:"id"`
	UserId         string          `db:"user_id"`
	ExpectedAmount decimal.Decimal `db:"expected_amount"`
	BaseAmount     decimal.Decimal `db:"base_amount"`
	Category       string          `db:"category"`
	Network        string          `db:"network"`
	Status         string          `db:"status"`
	ExternalTxId   string          `db:"external_tx_id"`
	CreatedAt      time.Time       `db:"created_at"`
	ExpiresAt      time.Time       `db:"expires_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
}

// WithdrawalRecord is persisted only after the balance has been debited
// and the external transfer submission succeeded.
type WithdrawalRecord struct {
	Id            string          `db:"id"`
	UserId        string          `db:"user_id"`
	Amount        decimal.Decimal `db:"amount"`
	Address       string          `db:"address"`
	Network       string          `db:"network"`
	ExternalTxId  string          `db:"external_tx_id"`
	AdminStatus   string          `db:"admin_status"`
	GatewayStatus string          `db:"gateway_status"`
	RequestedAt   time.Time       `db:"requested_at"`
}

// ReferralReward records a single flat referral payout.
type ReferralReward struct {
	Id         string          `db:"id"`
	ReferrerId string          `db:"referrer_id"`
	ReferredId string          `db:"referred_id"`
	Amount     decimal.Decimal `db:"amount"`
	CreatedAt  time.Time       `db:"created_at"`
}

// AccountBalance represents current balance state (hot data)
type AccountBalance struct {
	Id                string          `db:"id"`
	UserId            string          `db:"user_id"`
	Asset             string          `db:"asset"`
	Balance           decimal.Decimal `db:"balance"`
	LastTransactionId string          `db:"last_transaction_id"`
	Version           int64           `db:"version"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Transaction represents immutable transaction history (cold data)
type Transaction struct {
	Id                    string          `db:"id"`
	UserId                string          `db:"user_id"`
	Asset                 string          `db:"asset"`
	TransactionType       string          `db:"transaction_type"`
	Amount                decimal.Decimal `db:"amount"`
	BalanceBefore         decimal.Decimal `db:"balance_before"`
	BalanceAfter          decimal.Decimal `db:"balance_after"`
	ExternalTransactionId string          `db:"external_transaction_id"`
	Reference             string          `db:"reference"`
	Status                string          `db:"status"`
	CreatedAt             time.Time       `db:"created_at"`
	ProcessedAt           time.Time       `db:"processed_at"`
}
