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

package settlement

import (
	"context"
	"errors"
	"fmt"

	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/notify"
	"bmx-rewards-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// processEvent settles a single deposit event. Non-confirmed events are
// left for a later cycle. Confirmed events with no matching intent are
// orphans: logged, remembered, never credited.
func (e *Engine) processEvent(ctx context.Context, event models.DepositEvent) error {
	if event.Status != models.DepositStatusConfirmed {
		zap.L().Debug("Skipping unconfirmed deposit",
			zap.String("external_tx_id", event.TxId),
			zap.Int("status", event.Status))
		return nil
	}

	if e.isProcessed(event.TxId) {
		return nil
	}

	amount, err := decimal.NewFromString(event.Amount)
	if err != nil {
		return fmt.Errorf("invalid deposit amount %q: %w", event.Amount, err)
	}

	// The cache is only a fast path; the store decides authoritatively
	// whether this transaction already settled an intent. A settled
	// intent can still owe its rewards when an earlier cycle failed
	// partway through, so the finish step runs again until it sticks.
	intent, err := e.store.FindIntentByExternalTxId(ctx, event.TxId)
	if err == nil {
		return e.finishSettlement(ctx, intent, amount, event.TxId, false)
	}
	if !errors.Is(err, store.ErrNoMatchingIntent) {
		return fmt.Errorf("failed to check settled transactions: %w", err)
	}

	now := e.now().UTC()
	intent, err = e.store.CompleteIntent(ctx, store.CompleteIntentParams{
		ExpectedAmount: amount,
		Network:        event.Network,
		ExternalTxId:   event.TxId,
		Now:            now,
	})
	if errors.Is(err, store.ErrNoMatchingIntent) {
		zap.L().Warn("Orphan deposit: no waiting intent matches amount",
			zap.String("external_tx_id", event.TxId),
			zap.String("amount", amount.String()),
			zap.String("network", event.Network))
		e.markProcessed(event.TxId)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to complete intent: %w", err)
	}

	return e.finishSettlement(ctx, intent, amount, event.TxId, true)
}

// finishSettlement grants the activation rewards and records the event
// as done. The event is only marked processed once everything landed,
// so a failed grant is retried on the next cycle.
func (e *Engine) finishSettlement(ctx context.Context, intent *models.DepositIntent, amount decimal.Decimal, txId string, settledNow bool) error {
	user, err := e.store.GetUserById(ctx, intent.UserId)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", intent.UserId, err)
	}

	if !user.Eligible {
		if err := e.grantRewards(ctx, user, intent, amount, txId); err != nil {
			return err
		}
		e.notifySettled(user, amount, txId)
	} else if settledNow {
		e.notifySettled(user, amount, txId)
	}

	e.markProcessed(txId)
	return nil
}

// grantRewards runs the one-time activation for the user's first
// qualifying deposit: the category reward and, when a referrer exists,
// the flat referral match.
func (e *Engine) grantRewards(ctx context.Context, user *models.User, intent *models.DepositIntent, amount decimal.Decimal, txId string) error {
	category := intent.Category
	if category == "" {
		category = user.Category
	}
	base := intent.BaseAmount
	if base.IsZero() {
		base = amount
	}

	reward := base.Mul(e.tables.RewardRate(category)).Round(2)

	if !reward.IsZero() {
		if err := e.store.CreditBalance(ctx, user.Id, e.asset, reward, txId+"-reward", "deposit reward"); err != nil {
			if !errors.Is(err, store.ErrDuplicateTransaction) {
				return fmt.Errorf("failed to credit reward: %w", err)
			}
		}

		if user.ReferredBy != "" {
			if err := e.store.CreditBalance(ctx, user.ReferredBy, e.asset, reward, txId+"-referral", "referral reward"); err != nil {
				if !errors.Is(err, store.ErrDuplicateTransaction) {
					return fmt.Errorf("failed to credit referral reward: %w", err)
				}
			}
			if err := e.store.RecordReferralReward(ctx, user.ReferredBy, user.Id, reward); err != nil {
				return fmt.Errorf("failed to record referral reward: %w", err)
			}
			zap.L().Info("Referral reward granted",
				zap.String("referrer_id", user.ReferredBy),
				zap.String("referred_id", user.Id),
				zap.String("amount", reward.String()))
		}
	}

	// Eligibility flips last. A credit failure above leaves the user
	// ineligible, so the next cycle retries the whole grant; the
	// idempotency keys keep retried credits from double counting.
	if err := e.store.MarkEligible(ctx, user.Id, category); err != nil {
		return fmt.Errorf("failed to mark user eligible: %w", err)
	}

	zap.L().Info("User activated",
		zap.String("user_id", user.Id),
		zap.String("category", category),
		zap.String("base_amount", base.String()),
		zap.String("reward", reward.String()))
	return nil
}

// notifySettled sends the confirmation emails. Delivery failures are
// logged and swallowed: settlement already happened.
func (e *Engine) notifySettled(user *models.User, amount decimal.Decimal, txId string) {
	subject, body := notify.DepositConfirmed(user.Name, e.asset, txId, amount)
	if err := e.sink.Send(user.Email, subject, body); err != nil {
		zap.L().Warn("Failed to send deposit confirmation",
			zap.String("user_id", user.Id),
			zap.Error(err))
	}

	if e.operatorEmail == "" {
		return
	}
	subject, body = notify.DepositConfirmedOperator(user.Name, user.Email, e.asset, txId, amount)
	if err := e.sink.Send(e.operatorEmail, subject, body); err != nil {
		zap.L().Warn("Failed to send operator notification", zap.Error(err))
	}
}
