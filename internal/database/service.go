/**
 * Copyright 2025-present BMX Adventure
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

type Service struct {
	db        *sql.DB
	subledger *SubledgerService
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	subledger := NewSubledgerService(db)
	service := &Service{db: db, subledger: subledger}
	if err := service.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	if err := subledger.InitSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize subledger schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL DEFAULT '',
		eligible BOOLEAN NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		points TEXT NOT NULL DEFAULT '0',
		referred_by TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users(referred_by);

	CREATE TABLE IF NOT EXISTS referral_rewards (
		id TEXT PRIMARY KEY,
		referrer_id TEXT NOT NULL REFERENCES users(id),
		referred_id TEXT NOT NULL REFERENCES users(id),
		amount TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_referral_rewards_referrer ON referral_rewards(referrer_id);
	-- A referred user activates once, so the referrer is paid once per
	-- referred user even when a settlement cycle is retried.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_referral_rewards_referred ON referral_rewards(referred_id);

	CREATE TABLE IF NOT EXISTS deposit_intents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		expected_amount TEXT NOT NULL,
		base_amount TEXT NOT NULL DEFAULT '0',
		category TEXT NOT NULL DEFAULT '',
		network TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'waiting',
		external_tx_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	-- The expected amount is the entire correlation key, so it must be
	-- unique among waiting intents. Completed and expired intents free
	-- their amount for reuse.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_intents_amount_waiting
		ON deposit_intents(expected_amount) WHERE status = 'waiting';
	-- One settlement per external transaction, across restarts.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_intents_external_tx
		ON deposit_intents(external_tx_id) WHERE external_tx_id != '';
	CREATE INDEX IF NOT EXISTS idx_intents_user_status ON deposit_intents(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_intents_expires_at ON deposit_intents(expires_at);

	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		amount TEXT NOT NULL,
		address TEXT NOT NULL,
		network TEXT NOT NULL,
		external_tx_id TEXT NOT NULL DEFAULT '',
		admin_status TEXT NOT NULL DEFAULT 'Pending',
		gateway_status TEXT NOT NULL DEFAULT 'Processing',
		requested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals(user_id);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_external_tx ON withdrawals(external_tx_id);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_requested_at ON withdrawals(requested_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Subledger convenience methods

func (s *Service) GetUserBalance(ctx context.Context, userId string, asset string) (decimal.Decimal, error) {
	return s.subledger.GetBalance(ctx, userId, asset)
}

// CreditBalance adds amount to the user's balance and records the
// transaction. A duplicate externalTxId returns ErrDuplicateTransaction
// without mutating anything.
func (s *Service) CreditBalance(ctx context.Context, userId, asset string, amount decimal.Decimal, externalTxId, reference string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	_, err := s.subledger.ProcessTransaction(ctx, ProcessTransactionParams{
		UserId:          userId,
		Asset:           asset,
		TransactionType: "credit",
		Amount:          amount,
		ExternalTxId:    externalTxId,
		Reference:       reference,
	})
	return err
}

// DebitBalance subtracts amount from the user's balance. A debit that
// would push the balance negative fails with ErrInsufficientBalance.
func (s *Service) DebitBalance(ctx context.Context, userId, asset string, amount decimal.Decimal, externalTxId, reference string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("debit amount must be positive, got %s", amount)
	}
	_, err := s.subledger.ProcessTransaction(ctx, ProcessTransactionParams{
		UserId:          userId,
		Asset:           asset,
		TransactionType: "debit",
		Amount:          amount.Neg(),
		ExternalTxId:    externalTxId,
		Reference:       reference,
	})
	return err
}

func (s *Service) GetTransactionHistory(ctx context.Context, userId, asset string, limit, offset int) ([]models.Transaction, error) {
	return s.subledger.GetTransactionHistory(ctx, userId, asset, limit, offset)
}

func (s *Service) ReconcileUserBalance(ctx context.Context, userId, asset string) error {
	return s.subledger.ReconcileBalance(ctx, userId, asset)
}

func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
