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
	"time"

	"bmx-rewards-go/internal/models"
	"bmx-rewards-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateIntent reserves a unique expected amount for the user. The
// amount reservation is enforced by a partial unique index over waiting
// intents; a collision surfaces as ErrAmountConflict so the caller can
// retry with a different amount.
func (s *Service) CreateIntent(ctx context.Context, params store.CreateIntentParams) (*models.DepositIntent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingId string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM deposit_intents WHERE user_id = ? AND status = 'waiting' AND expires_at > ? LIMIT 1`,
		params.UserId, params.CreatedAt).Scan(&existingId)
	if err == nil {
		return nil, store.ErrActiveIntentExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unable to check for active intent: %w", err)
	}

	intentId := uuid.New().String()
	_, err = tx.ExecContext(ctx, queryInsertIntent,
		intentId,
		params.UserId,
		params.ExpectedAmount.StringFixed(2),
		params.BaseAmount.String(),
		params.Category,
		params.Network,
		params.CreatedAt,
		params.ExpiresAt)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, store.ErrAmountConflict
		}
		return nil, fmt.Errorf("unable to create intent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("unable to commit intent: %w", err)
	}

	zap.L().Info("Created deposit intent",
		zap.String("intent_id", intentId),
		zap.String("user_id", params.UserId),
		zap.String("expected_amount", params.ExpectedAmount.StringFixed(2)),
		zap.Time("expires_at", params.ExpiresAt))

	return &models.DepositIntent{
		Id:             intentId,
		UserId:         params.UserId,
		ExpectedAmount: params.ExpectedAmount,
		BaseAmount:     params.BaseAmount,
		Category:       params.Category,
		Network:        params.Network,
		Status:         models.IntentStatusWaiting,
		CreatedAt:      params.CreatedAt,
		ExpiresAt:      params.ExpiresAt,
	}, nil
}

func (s *Service) GetActiveIntent(ctx context.Context, userId string, now time.Time) (*models.DepositIntent, error) {
	row := s.db.QueryRowContext(ctx, queryGetActiveIntent, userId, now)
	intent, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoMatchingIntent
	}
	return intent, err
}

func (s *Service) FindIntentByExternalTxId(ctx context.Context, externalTxId string) (*models.DepositIntent, error) {
	row := s.db.QueryRowContext(ctx, queryGetIntentByExternalTx, externalTxId)
	intent, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoMatchingIntent
	}
	return intent, err
}

// CompleteIntent settles the waiting intent whose expected amount and
// network match the deposit event. The status transition is guarded by
// a conditional update so a concurrent completion of the same intent
// loses cleanly with ErrNoMatchingIntent.
func (s *Service) CompleteIntent(ctx context.Context, params store.CompleteIntentParams) (*models.DepositIntent, error) {
	row := s.db.QueryRowContext(ctx, queryGetWaitingIntentByAmount,
		params.ExpectedAmount.StringFixed(2), params.Network, params.Now)
	intent, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoMatchingIntent
	}
	if err != nil {
		return nil, err
	}

	// The lookup key is rendered at two decimal places, so an inexact
	// deposit like 3.441 would land on the 3.44 intent. Only an exact
	// amount settles; anything else is an orphan.
	if !params.ExpectedAmount.Equal(intent.ExpectedAmount) {
		return nil, store.ErrNoMatchingIntent
	}

	result, err := s.db.ExecContext(ctx, queryCompleteIntent, params.ExternalTxId, params.Now, intent.Id)
	if err != nil {
		if isUniqueConstraintErr(err) {
			// external_tx_id already settled another intent
			return nil, store.ErrNoMatchingIntent
		}
		return nil, fmt.Errorf("unable to complete intent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNoMatchingIntent
	}

	intent.Status = models.IntentStatusCompleted
	intent.ExternalTxId = params.ExternalTxId
	completedAt := params.Now
	intent.CompletedAt = &completedAt

	zap.L().Info("Completed deposit intent",
		zap.String("intent_id", intent.Id),
		zap.String("user_id", intent.UserId),
		zap.String("expected_amount", intent.ExpectedAmount.StringFixed(2)),
		zap.String("external_tx_id", params.ExternalTxId))
	return intent, nil
}

// ExpireIntents transitions all overdue waiting intents to expired and
// returns how many were swept.
func (s *Service) ExpireIntents(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryExpireIntents, now)
	if err != nil {
		return 0, fmt.Errorf("unable to expire intents: %w", err)
	}
	return result.RowsAffected()
}

func scanIntent(row rowScanner) (*models.DepositIntent, error) {
	var intent models.DepositIntent
	var expected, base string
	var completedAt sql.NullTime
	err := row.Scan(&intent.Id, &intent.UserId, &expected, &base, &intent.Category,
		&intent.Network, &intent.Status, &intent.ExternalTxId,
		&intent.CreatedAt, &intent.ExpiresAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if intent.ExpectedAmount, err = decimal.NewFromString(expected); err != nil {
		return nil, fmt.Errorf("corrupt expected amount for intent %s: %w", intent.Id, err)
	}
	if intent.BaseAmount, err = decimal.NewFromString(base); err != nil {
		return nil, fmt.Errorf("corrupt base amount for intent %s: %w", intent.Id, err)
	}
	if completedAt.Valid {
		intent.CompletedAt = &completedAt.Time
	}
	return &intent, nil
}
