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

package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"bmx-rewards-go/internal/config"
	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/notify"
	"bmx-rewards-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Validation errors. Each maps to a distinct user-facing reason and
// none of them mutate state.
var (
	ErrInvalidAmount         = errors.New("withdrawal amount must be positive")
	ErrMissingAddress        = errors.New("destination address is required")
	ErrUnsupportedNetwork    = errors.New("unsupported network")
	ErrFirstWithdrawalAmount = errors.New("first withdrawal must be the fixed introductory amount")
	ErrReferralRequired      = errors.New("at least one referral reward is required to withdraw")
	ErrBelowMinimum          = errors.New("amount is below the minimum withdrawal")
	ErrNoTier                = errors.New("no withdrawal tier for this category and level")
	ErrAboveTierLimit        = errors.New("amount exceeds the tier limit")
)

// TransferGateway is the slice of the exchange client the processor needs.
type TransferGateway interface {
	CreateWithdrawal(ctx context.Context, address string, amount decimal.Decimal, network string) (*models.WithdrawalSubmission, error)
}

// Processor validates and executes withdrawal requests using the
// debit-then-compensate pattern: the balance is debited before the
// gateway call and credited back when the submission fails.
type Processor struct {
	store   store.LedgerStore
	gateway TransferGateway
	sink    notify.Sink
	tables  *config.Tables
	cfg     models.WithdrawalConfig
}

func NewProcessor(ledger store.LedgerStore, gateway TransferGateway, sink notify.Sink, tables *config.Tables, cfg models.WithdrawalConfig) *Processor {
	return &Processor{
		store:   ledger,
		gateway: gateway,
		sink:    sink,
		tables:  tables,
		cfg:     cfg,
	}
}

// Process validates the request, debits the balance, submits the
// transfer and persists the record. No record is written for a failed
// submission; the debit is compensated instead.
func (p *Processor) Process(ctx context.Context, userId string, amount decimal.Decimal, address, network string) (*models.WithdrawalRecord, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if address == "" {
		return nil, ErrMissingAddress
	}
	if network != p.cfg.Network {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}

	user, err := p.store.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}

	if err := p.checkTier(ctx, user, amount); err != nil {
		return nil, err
	}

	balance, err := p.store.GetUserBalance(ctx, userId, p.cfg.Asset)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			store.ErrInsufficientBalance, balance.StringFixed(2), amount.StringFixed(2))
	}

	// Reserve the funds before calling out. The requestId doubles as the
	// ledger idempotency key for this attempt.
	requestId := uuid.New().String()
	if err := p.store.DebitBalance(ctx, userId, p.cfg.Asset, amount, requestId, "withdrawal"); err != nil {
		return nil, err
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	submission, err := p.gateway.CreateWithdrawal(gatewayCtx, address, amount, network)
	if err != nil {
		p.compensate(ctx, userId, amount, requestId)
		return nil, fmt.Errorf("withdrawal submission failed: %w", err)
	}

	record, err := p.store.CreateWithdrawal(ctx, store.CreateWithdrawalParams{
		UserId:       userId,
		Amount:       amount,
		Address:      address,
		Network:      network,
		ExternalTxId: submission.Id,
	})
	if err != nil {
		// The transfer is already on its way; losing the record is an
		// operational problem, not a user-facing failure.
		zap.L().Error("Withdrawal submitted but record not persisted",
			zap.String("user_id", userId),
			zap.String("external_tx_id", submission.Id),
			zap.Error(err))
		return nil, fmt.Errorf("withdrawal submitted (tx %s) but record not persisted: %w", submission.Id, err)
	}

	p.notifyRequested(user, amount)
	return record, nil
}

// checkTier applies the tiered eligibility rules: a fixed introductory
// amount for the first withdrawal, then referral-gated amounts bounded
// by the (category, level) bracket table.
func (p *Processor) checkTier(ctx context.Context, user *models.User, amount decimal.Decimal) error {
	count, err := p.store.CountWithdrawals(ctx, user.Id)
	if err != nil {
		return err
	}

	rules := p.tables.Withdrawal
	if count == 0 {
		if !amount.Equal(rules.FirstAmount) {
			return fmt.Errorf("%w: expected %s", ErrFirstWithdrawalAmount, rules.FirstAmount.StringFixed(2))
		}
		return nil
	}

	rewards, err := p.store.CountReferralRewards(ctx, user.Id)
	if err != nil {
		return err
	}
	if rewards < 1 {
		return ErrReferralRequired
	}

	if amount.LessThan(rules.MinAmount) {
		return fmt.Errorf("%w: minimum %s", ErrBelowMinimum, rules.MinAmount.StringFixed(2))
	}

	limit, ok := rules.Cap(user.Category, user.Level)
	if !ok {
		return fmt.Errorf("%w: category %q, level %d", ErrNoTier, user.Category, user.Level)
	}
	if amount.GreaterThan(limit) {
		return fmt.Errorf("%w: maximum %s for category %s at level %d",
			ErrAboveTierLimit, limit.StringFixed(2), user.Category, user.Level)
	}
	return nil
}

// compensate credits back a debit whose gateway submission failed. The
// reversal carries its own idempotency key derived from the request.
func (p *Processor) compensate(ctx context.Context, userId string, amount decimal.Decimal, requestId string) {
	err := p.store.CreditBalance(ctx, userId, p.cfg.Asset, amount, requestId+"-reversal", "withdrawal reversal")
	if err != nil && !errors.Is(err, store.ErrDuplicateTransaction) {
		// Funds are reserved but not sent. Needs manual reconciliation.
		zap.L().Error("Failed to compensate debit after gateway failure",
			zap.String("user_id", userId),
			zap.String("amount", amount.String()),
			zap.String("request_id", requestId),
			zap.Error(err))
	}
}

func (p *Processor) notifyRequested(user *models.User, amount decimal.Decimal) {
	subject, body := notify.WithdrawalRequested(user.Name, p.cfg.Asset, amount)
	if err := p.sink.Send(user.Email, subject, body); err != nil {
		zap.L().Warn("Failed to send withdrawal confirmation",
			zap.String("user_id", user.Id),
			zap.Error(err))
	}

	if p.cfg.OperatorEmail == "" {
		return
	}
	subject, body = notify.WithdrawalRequestedOperator(user.Name, user.Email, p.cfg.Asset, amount)
	if err := p.sink.Send(p.cfg.OperatorEmail, subject, body); err != nil {
		zap.L().Warn("Failed to send operator notification", zap.Error(err))
	}
}
